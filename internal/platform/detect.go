package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	goos   string
	goarch string
}

// NewDetector creates a new platform detector for the running host.
func NewDetector() Detector {
	return &RealDetector{goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// Detect performs platform detection and returns platform information.
//
// On Linux, if gopsutil fails to detect the distribution, the distro fields
// stay empty and detection still succeeds.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	token, err := Token(d.goos)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	arch, err := NormalizeArch(d.goarch)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}

	info := &Info{
		OS:      d.goos,
		Token:   token,
		Arch:    arch,
		ArchRaw: d.goarch,
	}

	if d.goos == "linux" {
		distro, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}
		info.Distro = normalizeDistro(distro)
		info.Family = normalizeDistro(family)
		info.Version = normalizeDistro(version)
	}

	return info, nil
}

// StaticDetector returns a fixed platform, used when --platform and --arch
// override detection.
type StaticDetector struct {
	info Info
}

// NewStaticDetector validates platform and arch and returns a detector for
// them. Either value may be a GOOS/GOARCH spelling or a release token.
func NewStaticDetector(platform, arch string) (*StaticDetector, error) {
	token, err := Token(platform)
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeArch(arch)
	if err != nil {
		return nil, err
	}
	return &StaticDetector{info: Info{
		OS:      goosOf(token),
		Token:   token,
		Arch:    normalized,
		ArchRaw: arch,
	}}, nil
}

// Detect returns a copy of the fixed platform.
func (d *StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := d.info
	return &info, nil
}

// Override returns a detector that reports the host but replaces the
// platform and/or arch when they are non-empty. With both set the host is
// never consulted.
func Override(base Detector, platform, arch string) (Detector, error) {
	switch {
	case platform == "" && arch == "":
		return base, nil
	case platform != "" && arch != "":
		static, err := NewStaticDetector(platform, arch)
		if err != nil {
			return nil, err
		}
		return static, nil
	}
	return &overrideDetector{base: base, platform: platform, arch: arch}, nil
}

type overrideDetector struct {
	base     Detector
	platform string
	arch     string
}

func (d *overrideDetector) Detect(ctx context.Context) (*Info, error) {
	info, err := d.base.Detect(ctx)
	if err != nil {
		return nil, err
	}

	if d.platform != "" {
		token, err := Token(d.platform)
		if err != nil {
			return nil, err
		}
		if token != info.Token {
			info.Distro, info.Family, info.Version = "", "", ""
		}
		info.Token, info.OS = token, goosOf(token)
	}
	if d.arch != "" {
		arch, err := NormalizeArch(d.arch)
		if err != nil {
			return nil, err
		}
		info.Arch, info.ArchRaw = arch, d.arch
	}
	return info, nil
}
