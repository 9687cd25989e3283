package flags

import (
	"github.com/dshills/clangcomplete/internal/completer"
)

// Static answers with fixed flags per filetype, chosen by file extension.
type Static struct {
	byFiletype map[string][]string
}

var _ Resolver = (*Static)(nil)

// NewStatic creates a static source. Keys are filetypes ("c", "cpp",
// "objc", "objcpp"); a "*" entry applies to any other C-family file.
func NewStatic(byFiletype map[string][]string) *Static {
	owned := make(map[string][]string, len(byFiletype))
	for ft, f := range byFiletype {
		owned[ft] = append([]string(nil), f...)
	}
	return &Static{byFiletype: owned}
}

// Resolve implements Resolver. Static answers are always cacheable.
func (s *Static) Resolve(filename string) (Result, error) {
	ft := completer.FiletypeForPath(filename)
	if ft == "" {
		return Result{}, nil
	}
	f, ok := s.byFiletype[ft]
	if !ok {
		f = s.byFiletype["*"]
	}
	if len(f) == 0 {
		return Result{}, nil
	}
	return Result{Flags: append([]string(nil), f...), Cache: true}, nil
}
