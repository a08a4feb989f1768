// Package platform detects the host operating system and architecture and
// maps them to the tokens used in release archive names.
//
// Detection uses runtime.GOOS and runtime.GOARCH, plus gopsutil for Linux
// distribution details. The result is also exposed to project configs as a
// read-only Lua table.
package platform

import "context"

// Release platform tokens.
const (
	TokenLinux  = "linux"
	TokenDarwin = "darwin"
	TokenWin32  = "win32"
)

// Info contains platform detection information.
type Info struct {
	OS      string // GOOS: "linux", "darwin", "windows"
	Token   string // release token: "linux", "darwin", "win32"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // value before normalization (e.g. "x86_64", "aarch64")
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Family  string // distro family (Linux only, e.g. "debian")
	Version string // distro version (Linux only, e.g. "22.04")
}

// Pair returns "<token>-<arch>", the key used in checksum maps.
func (i *Info) Pair() string {
	return i.Token + "-" + i.Arch
}

// IsWindows returns true if the release token is win32.
func (i *Info) IsWindows() bool {
	return i.Token == TokenWin32
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.Token == TokenDarwin && i.Arch == "arm64"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
