package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM. Configs are declarative:
// no process control, no filesystem, no loading other code, and no raw
// access that could defeat the read-only platform table.
var blockedGlobals = []string{
	"os", "io", "debug", "package",
	"require", "module", "dofile", "loadfile", "load", "loadstring",
	"collectgarbage", "getfenv", "setfenv", "newproxy",
	"getmetatable", "setmetatable", "rawget", "rawset", "rawequal",
}

// sandboxLuaVM strips a VM down to string, table, math and the basic
// value functions (type, tostring, tonumber, pairs, ipairs, ...).
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a Lua VM for config parsing.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{CallStackSize: 256})
	sandboxLuaVM(L)
	return L
}
