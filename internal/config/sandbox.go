package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from the base library. They load code, touch
// the filesystem, or bypass the read-only platform table.
var blockedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"collectgarbage", "getfenv", "setfenv", "newproxy",
	"rawset", "rawget", "rawequal", "setmetatable", "getmetatable",
}

// newSandboxedVM creates a Lua state with only the base, table, string and
// math libraries. os, io, package and debug are never opened.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: callStackSize,
		RegistrySize:  registrySize,
	})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
