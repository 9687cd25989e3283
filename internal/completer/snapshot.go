package completer

import (
	"path/filepath"
	"strings"
)

// DefaultFiletypes are the filetypes the clang engine understands.
var DefaultFiletypes = []string{"c", "cpp", "objc", "objcpp"}

var extFiletypes = map[string]string{
	".c":   "c",
	".h":   "cpp",
	".cc":  "cpp",
	".cpp": "cpp",
	".cxx": "cpp",
	".c++": "cpp",
	".hh":  "cpp",
	".hpp": "cpp",
	".hxx": "cpp",
	".inl": "cpp",
	".m":   "objc",
	".mm":  "objcpp",
}

// FiletypeForPath guesses a buffer filetype from the file extension.
// Headers count as cpp. Unknown extensions yield "".
func FiletypeForPath(path string) string {
	return extFiletypes[strings.ToLower(filepath.Ext(path))]
}

// SnapshotBuilder builds snapshot batches from open buffers.
type SnapshotBuilder struct {
	filetypes map[string]bool
}

// NewSnapshotBuilder creates a builder accepting the given filetypes.
// With no filetypes it accepts DefaultFiletypes.
func NewSnapshotBuilder(filetypes ...string) *SnapshotBuilder {
	if len(filetypes) == 0 {
		filetypes = DefaultFiletypes
	}
	b := &SnapshotBuilder{filetypes: make(map[string]bool, len(filetypes))}
	for _, ft := range filetypes {
		b.filetypes[ft] = true
	}
	return b
}

// Supports reports whether filetype is in the supported set.
func (b *SnapshotBuilder) Supports(filetype string) bool {
	return b.filetypes[filetype]
}

// Build returns a fresh batch of every buffer with a supported filetype,
// non-empty contents and a non-empty name. Other buffers are skipped.
func (b *SnapshotBuilder) Build(buffers []Buffer) SnapshotBatch {
	snapshots := make([]BufferSnapshot, 0, len(buffers))
	for _, buf := range buffers {
		if !b.Supports(buf.Filetype) {
			continue
		}
		contents := strings.Join(buf.Lines, "\n")
		if contents == "" || buf.Name == "" {
			continue
		}
		snapshots = append(snapshots, BufferSnapshot{
			Filename: buf.Name,
			Contents: contents,
		})
	}
	// The slice is owned by the batch alone.
	return SnapshotBatch{snapshots: snapshots}
}
