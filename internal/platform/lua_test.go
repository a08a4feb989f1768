package platform

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestInjectPlatformTable(t *testing.T) {
	tests := []struct {
		name  string
		info  *Info
		cases map[string]lua.LValue
	}{
		{
			name: "linux",
			info: &Info{OS: "linux", Token: TokenLinux, Arch: "amd64", ArchRaw: "x86_64", Distro: "ubuntu", Family: "debian", Version: "22.04"},
			cases: map[string]lua.LValue{
				`return platform.os`:            lua.LString("linux"),
				`return platform.token`:         lua.LString("linux"),
				`return platform.arch`:          lua.LString("amd64"),
				`return platform.arch_raw`:      lua.LString("x86_64"),
				`return platform.pair`:          lua.LString("linux-amd64"),
				`return platform.is_linux`:      lua.LTrue,
				`return platform.is_windows`:    lua.LFalse,
				`return platform.distro.id`:     lua.LString("ubuntu"),
				`return platform.distro.family`: lua.LString("debian"),
			},
		},
		{
			name: "apple_silicon",
			info: &Info{OS: "darwin", Token: TokenDarwin, Arch: "arm64", ArchRaw: "arm64"},
			cases: map[string]lua.LValue{
				`return platform.is_macos`:         lua.LTrue,
				`return platform.is_arm64`:         lua.LTrue,
				`return platform.is_apple_silicon`: lua.LTrue,
				`return platform.distro`:           lua.LNil,
			},
		},
		{
			name: "windows",
			info: &Info{OS: "windows", Token: TokenWin32, Arch: "amd64", ArchRaw: "amd64"},
			cases: map[string]lua.LValue{
				`return platform.os`:         lua.LString("windows"),
				`return platform.token`:      lua.LString("win32"),
				`return platform.is_windows`: lua.LTrue,
				`return platform.pair`:       lua.LString("win32-amd64"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := lua.NewState()
			defer L.Close()

			if err := InjectPlatformTable(L, tt.info); err != nil {
				t.Fatalf("InjectPlatformTable() error = %v", err)
			}

			for code, want := range tt.cases {
				if err := L.DoString(code); err != nil {
					t.Fatalf("%s: %v", code, err)
				}
				got := L.Get(-1)
				L.Pop(1)
				if got != want {
					t.Errorf("%s = %v, want %v", code, got, want)
				}
			}
		})
	}
}

func TestPlatformTable_ReadOnly(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Token: TokenLinux, Arch: "amd64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	for _, code := range []string{
		`platform.arch = "arm64"`,
		`platform.new_field = true`,
		`setmetatable(platform, {})`,
	} {
		err := L.DoString(code)
		if err == nil {
			t.Errorf("%s: expected error", code)
			continue
		}
		if code != `setmetatable(platform, {})` && !strings.Contains(err.Error(), "read-only") {
			t.Errorf("%s: error = %v", code, err)
		}
	}
}

func TestPlatformTable_When(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Token: TokenLinux, Arch: "amd64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	if err := L.DoString(`
		bins = { "forge", platform.when(platform.is_windows, "extra"), "cast" }
		picked = platform.when(platform.is_linux, "chisel")
	`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	if got := L.GetGlobal("picked"); got != lua.LString("chisel") {
		t.Errorf("picked = %v, want chisel", got)
	}
	bins := L.GetGlobal("bins").(*lua.LTable)
	if bins.RawGetInt(2) != lua.LNil {
		t.Errorf("bins[2] = %v, want nil", bins.RawGetInt(2))
	}
}
