package flags

import (
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// ModuleName is the helper module scripts may require.
const ModuleName = "clangcomplete"

// safeModules are the built-in modules a script may require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// newSandboxedState creates a Lua state with only safe libraries, no file
// loading, and the helper module preloaded for scriptPath.
func newSandboxedState(scriptPath string) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	installSafeRequire(L)
	L.PreloadModule(ModuleName, helperModule(scriptPath))
	return L
}

// installSafeRequire blocks module loading from disk and restricts require
// to safe built-ins and preloaded modules.
func installSafeRequire(L *lua.LState) {
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] && name != ModuleName {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

// helperModule exposes read-only path helpers, enough to locate include
// directories relative to the script:
//
//	local cc = require("clangcomplete")
//	local inc = cc.join(cc.script_dir, "include")
//	if cc.exists(inc) then ... end
func helperModule(scriptPath string) lua.LGFunction {
	dir := filepath.Dir(scriptPath)
	return func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"dirname": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Dir(L.CheckString(1))))
				return 1
			},
			"basename": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Base(L.CheckString(1))))
				return 1
			},
			"extension": func(L *lua.LState) int {
				L.Push(lua.LString(filepath.Ext(L.CheckString(1))))
				return 1
			},
			"join": func(L *lua.LState) int {
				parts := make([]string, 0, L.GetTop())
				for i := 1; i <= L.GetTop(); i++ {
					parts = append(parts, L.CheckString(i))
				}
				L.Push(lua.LString(filepath.Join(parts...)))
				return 1
			},
			"exists": func(L *lua.LState) int {
				_, err := os.Stat(L.CheckString(1))
				L.Push(lua.LBool(err == nil))
				return 1
			},
		})
		L.SetField(mod, "script_dir", lua.LString(dir))
		L.Push(mod)
		return 1
	}
}
