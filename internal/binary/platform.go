package binary

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// PlatformLinux is the release token for Linux
	PlatformLinux = "linux"
	// PlatformDarwin is the release token for macOS
	PlatformDarwin = "darwin"
	// PlatformWin32 is the release token for Windows
	PlatformWin32 = "win32"

	// ArchivePrefix is the file name prefix of release archives
	ArchivePrefix = "foundry"
)

// constructArchiveURL builds the release archive URL.
// Pattern: {host}/{repo}/releases/download/{tag}/foundry_{version}_{platform}_{arch}.{ext}
func constructArchiveURL(host string, opts Options) (string, error) {
	if opts.Repo == "" || strings.Count(opts.Repo, "/") != 1 {
		return "", fmt.Errorf("repository must be owner/name, got %q", opts.Repo)
	}
	if opts.Version.Tag == "" {
		return "", fmt.Errorf("release tag is required")
	}

	ext, err := archiveExt(opts.Platform)
	if err != nil {
		return "", err
	}
	if err := validateArch(opts.Arch); err != nil {
		return "", err
	}

	version := opts.Version.Version
	if version == "" {
		version = opts.Version.Tag
	}

	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid release host %q", host)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.%s", ArchivePrefix, version, opts.Platform, opts.Arch, ext)
	return base.JoinPath(opts.Repo, "releases", "download", opts.Version.Tag, name).String(), nil
}

// archiveExt maps a platform token to its archive container.
func archiveExt(platform string) (string, error) {
	switch platform {
	case PlatformLinux, PlatformDarwin:
		return "tar.gz", nil
	case PlatformWin32:
		return "zip", nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", platform)
	}
}

func validateArch(arch string) error {
	switch arch {
	case "amd64", "arm64":
		return nil
	default:
		return fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// fileName maps a binary name to its file name inside the archive.
func fileName(binary, platform string) string {
	if platform == PlatformWin32 {
		return binary + ".exe"
	}
	return binary
}

// binaryName is the inverse of fileName.
func binaryName(file, platform string) string {
	if platform == PlatformWin32 {
		return strings.TrimSuffix(file, ".exe")
	}
	return file
}
