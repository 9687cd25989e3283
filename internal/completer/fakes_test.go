package completer

import (
	"context"
	"errors"
	"sync"
)

type updateCall struct {
	filename string
	batch    SnapshotBatch
	flags    []string
	promise  *Promise[[]Diagnostic]
}

type queryCall struct {
	query   CompletionQuery
	batch   SnapshotBatch
	flags   []string
	promise *Promise[[]CompletionCandidate]
}

// fakeEngine records calls and hands out promises the test resolves.
type fakeEngine struct {
	mu          sync.Mutex
	updating    map[string]bool
	diagnostics map[string][]Diagnostic
	updates     []*updateCall
	queries     []*queryCall
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		updating:    make(map[string]bool),
		diagnostics: make(map[string][]Diagnostic),
	}
}

func (e *fakeEngine) IsUpdatingTranslationUnit(filename string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updating[filename]
}

func (e *fakeEngine) UpdateTranslationUnitAsync(_ context.Context, filename string, batch SnapshotBatch, flags []string) Future[[]Diagnostic] {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := &updateCall{filename: filename, batch: batch, flags: flags, promise: NewPromise[[]Diagnostic]()}
	e.updates = append(e.updates, call)
	return call.promise
}

func (e *fakeEngine) DiagnosticsForFile(filename string) []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagnostics[filename]
}

func (e *fakeEngine) QueryCompletionsAsync(_ context.Context, q CompletionQuery, batch SnapshotBatch, flags []string) Future[[]CompletionCandidate] {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := &queryCall{query: q, batch: batch, flags: flags, promise: NewPromise[[]CompletionCandidate]()}
	e.queries = append(e.queries, call)
	return call.promise
}

// finishParse stores diags as the engine's result and resolves the i-th update.
func (e *fakeEngine) finishParse(i int, diags []Diagnostic) {
	e.mu.Lock()
	call := e.updates[i]
	e.diagnostics[call.filename] = diags
	e.mu.Unlock()
	call.promise.Resolve(diags, nil)
}

func (e *fakeEngine) setUpdating(filename string, v bool) {
	e.mu.Lock()
	e.updating[filename] = v
	e.mu.Unlock()
}

// fakeHost is an in-memory editor.
type fakeHost struct {
	buffers  []Buffer
	current  int
	line     int
	column   int
	messages []string
	echoed   []string
	numbers  map[string]int
}

func newFakeHost(buffers ...Buffer) *fakeHost {
	return &fakeHost{buffers: buffers, numbers: make(map[string]int)}
}

func (h *fakeHost) OpenBuffers() []Buffer { return h.buffers }

func (h *fakeHost) CurrentBuffer() Buffer {
	if len(h.buffers) == 0 {
		return Buffer{}
	}
	return h.buffers[h.current]
}

func (h *fakeHost) CurrentLine() string {
	buf := h.CurrentBuffer()
	if h.line < 0 || h.line >= len(buf.Lines) {
		return ""
	}
	return buf.Lines[h.line]
}

func (h *fakeHost) Cursor() (int, int) { return h.line, h.column }

func (h *fakeHost) PostMessage(msg string) { h.messages = append(h.messages, msg) }

func (h *fakeHost) EchoText(text string) { h.echoed = append(h.echoed, text) }

func (h *fakeHost) BufferNumber(filename string) int {
	if n, ok := h.numbers[filename]; ok {
		return n
	}
	n := len(h.numbers) + 1
	h.numbers[filename] = n
	return n
}

func (h *fakeHost) lastMessage() string {
	if len(h.messages) == 0 {
		return ""
	}
	return h.messages[len(h.messages)-1]
}

// fakeFlags maps filenames to flags.
type fakeFlags struct {
	flags map[string][]string
	err   error
}

func (f *fakeFlags) FlagsForFile(filename string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.flags[filename], nil
}

var errEngine = errors.New("engine exploded")

func cppBuffer(name string, lines int) Buffer {
	content := make([]string, lines)
	for i := range content {
		content[i] = "int x;"
	}
	return Buffer{Number: 1, Name: name, Filetype: "cpp", Lines: content}
}
