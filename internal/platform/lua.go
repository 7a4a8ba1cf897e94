package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// LuaGlobal is the name of the table configs read platform facts from.
const LuaGlobal = "platform"

// InjectPlatformTable exposes info to Lua as the read-only global
// "platform". Call it before running any user code.
//
// Besides plain fields the table carries two helpers:
//
//	platform.when(cond, value)  -- value if cond, else nil
//	platform.abi_is("x86", ...) -- true if the host ABI is any argument
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	fields := map[string]lua.LValue{
		"os":       lua.LString(info.OS),
		"arch":     lua.LString(info.Arch),
		"arch_raw": lua.LString(info.ArchRaw),
		"abi":      lua.LString(info.ABI),
		"is_linux": lua.LBool(info.IsLinux()),
		"is_64bit": lua.LBool(info.Is64Bit()),
		"distro":   distroTable(L, info.GetDistro()),
		"when":     L.NewFunction(luaWhen),
		"abi_is":   L.NewFunction(luaABIIs(info.ABI)),
	}
	for name, v := range fields {
		t.RawSetString(name, v)
	}

	L.SetGlobal(LuaGlobal, readOnly(L, t))
	return nil
}

// distroTable is nil off Linux.
func distroTable(L *lua.LState, d *Distro) lua.LValue {
	if d == nil {
		return lua.LNil
	}
	t := L.NewTable()
	t.RawSetString("id", lua.LString(d.ID))
	t.RawSetString("family", lua.LString(d.Family))
	t.RawSetString("version", lua.LString(d.Version))
	return t
}

func luaWhen(L *lua.LState) int {
	if L.CheckBool(1) {
		L.Push(L.Get(2))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func luaABIIs(abi string) lua.LGFunction {
	return func(L *lua.LState) int {
		for i := 1; i <= L.GetTop(); i++ {
			if L.CheckString(i) == abi {
				L.Push(lua.LTrue)
				return 1
			}
		}
		L.Push(lua.LFalse)
		return 1
	}
}

// readOnly returns a proxy that reads through to t and rejects writes and
// metatable replacement.
func readOnly(L *lua.LState, t *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	mt.RawSetString("__index", t)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s is read-only", LuaGlobal)
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
