package flags

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// DefaultScriptName is the flags script looked up next to sources.
const DefaultScriptName = ".clangcomplete.lua"

// DefaultScriptTimeout bounds one FlagsForFile call.
const DefaultScriptTimeout = 2 * time.Second

// entryPoint is the global function a script must define.
const entryPoint = "FlagsForFile"

// ScriptOption configures a Script.
type ScriptOption func(*Script)

// WithScriptTimeout bounds each FlagsForFile call.
func WithScriptTimeout(d time.Duration) ScriptOption {
	return func(s *Script) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithScriptLogger sets the logger.
func WithScriptLogger(logger *zap.Logger) ScriptOption {
	return func(s *Script) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Script resolves flags by calling FlagsForFile(filename) in a sandboxed
// Lua file. The function returns either a list of strings, or a table
//
//	{ flags = { "-x", "c++" }, do_cache = false }
//
// where do_cache defaults to true.
//
// gopher-lua states are single-threaded; calls are serialised.
type Script struct {
	mu      sync.Mutex
	path    string
	L       *lua.LState
	closed  bool
	timeout time.Duration
	logger  *zap.Logger
}

var _ Resolver = (*Script)(nil)

// LoadScript loads and runs the script at path.
func LoadScript(path string, opts ...ScriptOption) (*Script, error) {
	s := &Script{
		path:    path,
		timeout: DefaultScriptTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	L, err := s.load()
	if err != nil {
		return nil, err
	}
	s.L = L
	return s, nil
}

// load builds a fresh state and runs the script in it.
func (s *Script) load() (L *lua.LState, err error) {
	L = newSandboxedState(s.path)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		if err != nil {
			L.Close()
			L = nil
			err = &ScriptError{Path: s.path, Err: err}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.DoFile(s.path); err != nil {
		return L, err
	}
	if fn := L.GetGlobal(entryPoint); fn.Type() != lua.LTFunction {
		return L, ErrNoFunction
	}
	return L, nil
}

// Path returns the script path.
func (s *Script) Path() string {
	return s.path
}

// Reload re-runs the script in a fresh state. On failure the previous state
// stays in use. A closed script stays closed.
func (s *Script) Reload() error {
	L, err := s.load()
	if err != nil {
		s.logger.Warn("flags script reload failed", zap.String("path", s.path), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		L.Close()
		return ErrScriptClosed
	}
	old := s.L
	s.L = L
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.logger.Info("flags script reloaded", zap.String("path", s.path))
	return nil
}

// Resolve implements Resolver.
func (s *Script) Resolve(filename string) (res Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.L == nil {
		return Result{}, ErrScriptClosed
	}
	L := s.L

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = &ScriptError{Path: s.path, Err: fmt.Errorf("lua panic: %v", r)}
		}
	}()

	top := L.GetTop()
	defer L.SetTop(top)

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(entryPoint),
		NRet:    1,
		Protect: true,
	}, lua.LString(filename)); err != nil {
		return Result{}, &ScriptError{Path: s.path, Err: err}
	}

	res, err = parseResult(L.Get(-1))
	if err != nil {
		return Result{}, &ScriptError{Path: s.path, Err: err}
	}
	s.logger.Debug("flags from script",
		zap.String("file", filename),
		zap.Strings("flags", res.Flags),
		zap.Bool("cache", res.Cache))
	return res, nil
}

// Close releases the Lua state.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
	return nil
}

// parseResult accepts nil, a list of strings, or {flags=..., do_cache=...}.
func parseResult(v lua.LValue) (Result, error) {
	switch v.Type() {
	case lua.LTNil:
		return Result{}, nil
	case lua.LTTable:
	default:
		return Result{}, fmt.Errorf("FlagsForFile returned %s, want table", v.Type())
	}

	tbl := v.(*lua.LTable)
	list := tbl
	cache := true

	if f := tbl.RawGetString("flags"); f != lua.LNil {
		ft, ok := f.(*lua.LTable)
		if !ok {
			return Result{}, fmt.Errorf("flags is %s, want table", f.Type())
		}
		list = ft
		if dc := tbl.RawGetString("do_cache"); dc != lua.LNil {
			cache = lua.LVAsBool(dc)
		}
	}

	n := list.Len()
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		item := list.RawGetInt(i)
		s, ok := item.(lua.LString)
		if !ok {
			return Result{}, fmt.Errorf("flag %d is %s, want string", i, item.Type())
		}
		out = append(out, string(s))
	}
	return Result{Flags: out, Cache: cache}, nil
}
