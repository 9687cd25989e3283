package completer

import "context"

// Engine is the semantic analysis engine. Async methods return immediately;
// the engine does its work on its own goroutines.
type Engine interface {
	// IsUpdatingTranslationUnit reports whether a parse of filename is running.
	IsUpdatingTranslationUnit(filename string) bool

	// UpdateTranslationUnitAsync reparses filename with the given unsaved
	// buffers and flags. The batch must not be retained past resolution.
	UpdateTranslationUnitAsync(ctx context.Context, filename string, batch SnapshotBatch, flags []string) Future[[]Diagnostic]

	// DiagnosticsForFile returns the diagnostics of the last completed parse.
	DiagnosticsForFile(filename string) []Diagnostic

	// QueryCompletionsAsync requests completion candidates at a location.
	QueryCompletionsAsync(ctx context.Context, q CompletionQuery, batch SnapshotBatch, flags []string) Future[[]CompletionCandidate]
}

// Host is the editor hosting the coordinator.
type Host interface {
	// OpenBuffers returns every open buffer.
	OpenBuffers() []Buffer

	// CurrentBuffer returns the buffer with focus.
	CurrentBuffer() Buffer

	// CurrentLine returns the text of the cursor line.
	CurrentLine() string

	// Cursor returns the 0-based cursor line and column.
	Cursor() (line, column int)

	// PostMessage shows a transient notice.
	PostMessage(msg string)

	// EchoText shows longer text such as a full diagnostic.
	EchoText(text string)

	// BufferNumber resolves filename to a buffer number, creating one if needed.
	BufferNumber(filename string) int
}

// FlagsSource supplies compiler flags per file. An empty result means no flags
// are known yet.
type FlagsSource interface {
	FlagsForFile(filename string) ([]string, error)
}
