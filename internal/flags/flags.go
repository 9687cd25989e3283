// Package flags supplies per-file compiler flags to the completer.
//
// Sources are layered: a Lua flags script is consulted first, then static
// per-filetype defaults from configuration. A Cache sits in front of the
// chain and honours a script's request not to cache its answer.
//
//	script, _ := flags.LoadScript(".clangcomplete.lua")
//	chain := flags.NewChain(script, flags.NewStatic(defaults))
//	source := flags.NewCache(chain, 256)
//	coord := completer.New(engine, host, source)
package flags

import (
	"errors"
	"fmt"

	"github.com/dshills/clangcomplete/internal/completer"
)

// Errors returned by flag sources.
var (
	// ErrNoFunction indicates a script does not define FlagsForFile.
	ErrNoFunction = errors.New("script does not define FlagsForFile")

	// ErrScriptClosed indicates the script's Lua state has been closed.
	ErrScriptClosed = errors.New("script closed")
)

// ScriptError wraps a failure loading or running a flags script.
type ScriptError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("flags script %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Result is the answer of a flags source for one file.
type Result struct {
	// Flags are the compiler arguments, without the compiler or the file.
	Flags []string

	// Cache reports whether the answer may be reused for later requests.
	Cache bool
}

// Resolver produces flags for a file. An empty Flags means "unknown".
type Resolver interface {
	Resolve(filename string) (Result, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(filename string) (Result, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(filename string) (Result, error) {
	return f(filename)
}

// source exposes a Resolver as a completer.FlagsSource.
type source struct {
	r Resolver
}

// AsSource adapts r to completer.FlagsSource without caching.
func AsSource(r Resolver) completer.FlagsSource {
	return source{r: r}
}

func (s source) FlagsForFile(filename string) ([]string, error) {
	res, err := s.r.Resolve(filename)
	if err != nil {
		return nil, err
	}
	return res.Flags, nil
}
