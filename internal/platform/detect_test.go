package platform

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

// MockDetector is a mock implementation of Detector for testing.
type MockDetector struct {
	info *Info
	err  error
}

func (m *MockDetector) Detect(ctx context.Context) (*Info, error) {
	if m.err != nil {
		return nil, m.err
	}
	info := *m.info
	return &info, nil
}

func TestRealDetector_Detect(t *testing.T) {
	if _, err := NormalizeArch(runtime.GOARCH); err != nil {
		t.Skipf("host architecture %s has no releases", runtime.GOARCH)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %s, want %s", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %s, want %s", info.ArchRaw, runtime.GOARCH)
	}
	want, _ := Token(runtime.GOOS)
	if info.Token != want {
		t.Errorf("Token = %s, want %s", info.Token, want)
	}
	if runtime.GOOS != "linux" && info.Distro != "" {
		t.Errorf("Distro = %q on non-Linux host", info.Distro)
	}
}

func TestRealDetector_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		goos   string
		goarch string
	}{
		{"unsupported_os", "plan9", "amd64"},
		{"unsupported_arch", "linux", "riscv64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &RealDetector{goos: tt.goos, goarch: tt.goarch}
			if _, err := d.Detect(context.Background()); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestRealDetector_Windows(t *testing.T) {
	d := &RealDetector{goos: "windows", goarch: "amd64"}
	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.Token != TokenWin32 || !info.IsWindows() {
		t.Errorf("Token = %s, want win32", info.Token)
	}
	if info.Pair() != "win32-amd64" {
		t.Errorf("Pair() = %s", info.Pair())
	}
}

func TestOverride(t *testing.T) {
	host := &MockDetector{info: &Info{
		OS: "linux", Token: TokenLinux, Arch: "amd64", ArchRaw: "amd64",
		Distro: "ubuntu", Family: "debian", Version: "22.04",
	}}

	tests := []struct {
		name      string
		base      Detector
		platform  string
		arch      string
		wantToken string
		wantArch  string
		wantOS    string
		wantErr   bool
	}{
		{name: "no_override", base: host, wantToken: "linux", wantArch: "amd64", wantOS: "linux"},
		{name: "arch_only", base: host, arch: "aarch64", wantToken: "linux", wantArch: "arm64", wantOS: "linux"},
		{name: "platform_only", base: host, platform: "win32", wantToken: "win32", wantArch: "amd64", wantOS: "windows"},
		{name: "both_skip_host", base: &MockDetector{err: errors.New("boom")}, platform: "darwin", arch: "arm64", wantToken: "darwin", wantArch: "arm64", wantOS: "darwin"},
		{name: "bad_platform", base: host, platform: "beos", wantErr: true},
		{name: "bad_arch", base: host, platform: "linux", arch: "mips", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Override(tt.base, tt.platform, tt.arch)
			var info *Info
			if err == nil {
				info, err = d.Detect(context.Background())
			}

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if info.Token != tt.wantToken || info.Arch != tt.wantArch || info.OS != tt.wantOS {
				t.Errorf("got %s/%s/%s, want %s/%s/%s", info.OS, info.Token, info.Arch, tt.wantOS, tt.wantToken, tt.wantArch)
			}
		})
	}
}

func TestOverrideClearsDistroOnPlatformChange(t *testing.T) {
	host := &MockDetector{info: &Info{OS: "linux", Token: TokenLinux, Arch: "amd64", Distro: "ubuntu"}}

	d, err := Override(host, "darwin", "")
	if err != nil {
		t.Fatalf("Override() error = %v", err)
	}
	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.Distro != "" {
		t.Errorf("Distro = %q, want empty", info.Distro)
	}
}
