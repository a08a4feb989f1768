package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable sets a read-only global "platform" table describing
// info. It must be called before any user code runs.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	L.SetField(t, "os", lua.LString(info.OS))
	L.SetField(t, "token", lua.LString(info.Token))
	L.SetField(t, "arch", lua.LString(info.Arch))
	L.SetField(t, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(t, "pair", lua.LString(info.Pair()))

	L.SetField(t, "is_linux", lua.LBool(info.Token == TokenLinux))
	L.SetField(t, "is_macos", lua.LBool(info.Token == TokenDarwin))
	L.SetField(t, "is_windows", lua.LBool(info.IsWindows()))
	L.SetField(t, "is_amd64", lua.LBool(info.Arch == "amd64"))
	L.SetField(t, "is_arm64", lua.LBool(info.Arch == "arm64"))
	L.SetField(t, "is_apple_silicon", lua.LBool(info.IsAppleSilicon()))

	// Linux distribution (nil elsewhere or when detection failed)
	if info.Distro != "" {
		distro := L.NewTable()
		L.SetField(distro, "id", lua.LString(info.Distro))
		L.SetField(distro, "family", lua.LString(info.Family))
		L.SetField(distro, "version", lua.LString(info.Version))
		L.SetField(t, "distro", distro)
	}

	// when(condition, value) returns value if condition is true, nil otherwise
	L.SetField(t, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, t))
	return nil
}

// makeReadOnly returns an empty proxy whose metatable forwards reads to
// table and rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
