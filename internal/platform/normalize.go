package platform

import (
	"fmt"
	"strings"
)

// NormalizeArch converts GOARCH values and uname spellings to release
// architecture names. Only amd64 and arm64 are published.
func NormalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (releases exist for amd64 and arm64 only)", arch)
	}
}

// Token maps a GOOS value (or an existing token) to the release platform
// token.
func Token(goos string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "linux":
		return TokenLinux, nil
	case "darwin", "macos":
		return TokenDarwin, nil
	case "windows", "win32":
		return TokenWin32, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// goosOf is the inverse of Token.
func goosOf(token string) string {
	if token == TokenWin32 {
		return "windows"
	}
	return token
}

// normalizeDistro lowercases and trims distro fields from gopsutil.
func normalizeDistro(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
