package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/clangcomplete/internal/completer"
)

// DefaultCompiler is argv[0] of the compile commands handed to the server.
const DefaultCompiler = "clang"

// publishState is what the engine knows about the diagnostics of one file.
type publishState struct {
	seq     uint64 // number of publishes seen
	version int    // version of the latest publish
	diags   []completer.Diagnostic
	waiters []*publishWaiter
}

// publishWaiter is satisfied by a publish at or after version that arrives
// after seq publishes.
type publishWaiter struct {
	version  int
	afterSeq uint64
	ch       chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRequestTimeout bounds each parse and completion request.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCompiler sets argv[0] of the compile commands sent to the server.
func WithCompiler(compiler string) EngineOption {
	return func(e *Engine) {
		if compiler != "" {
			e.compiler = compiler
		}
	}
}

// WithWorkingDirectory sets the directory compile commands run in. It
// defaults to the directory of each file.
func WithWorkingDirectory(dir string) EngineOption {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// WithPositionEncoding sets the unit the server counts columns in. Columns
// are converted between it and byte offsets using the synced content.
func WithPositionEncoding(enc PositionEncodingKind) EngineOption {
	return func(e *Engine) {
		if enc != "" {
			e.encoding = enc
		}
	}
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is a completer.Engine backed by a language server.
type Engine struct {
	conn     Conn
	docs     *DocumentSync
	logger   *zap.Logger
	timeout  time.Duration
	compiler string
	workDir  string
	encoding PositionEncodingKind

	mu        sync.Mutex
	updating  map[string]int
	published map[DocumentURI]*publishState
	sentFlags map[string]string
}

var _ completer.Engine = (*Engine)(nil)

// NewEngine creates an engine on conn and subscribes to its diagnostics.
func NewEngine(conn Conn, opts ...EngineOption) *Engine {
	e := &Engine{
		conn:      conn,
		docs:      NewDocumentSync(conn),
		logger:    zap.NewNop(),
		timeout:   DefaultTimeout,
		compiler:  DefaultCompiler,
		encoding:  PositionEncodingUTF16,
		updating:  make(map[string]int),
		published: make(map[DocumentURI]*publishState),
		sentFlags: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	conn.OnNotification("textDocument/publishDiagnostics", e.onPublishDiagnostics)
	return e
}

// Documents returns the engine's document sync.
func (e *Engine) Documents() *DocumentSync {
	return e.docs
}

// IsUpdatingTranslationUnit implements completer.Engine.
func (e *Engine) IsUpdatingTranslationUnit(filename string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updating[filename] > 0
}

// UpdateTranslationUnitAsync implements completer.Engine. The returned future
// resolves with the diagnostics the server publishes for the synced version.
func (e *Engine) UpdateTranslationUnitAsync(ctx context.Context, filename string, batch completer.SnapshotBatch, flags []string) completer.Future[[]completer.Diagnostic] {
	promise := completer.NewPromise[[]completer.Diagnostic]()

	e.mu.Lock()
	e.updating[filename]++
	e.mu.Unlock()

	go func() {
		diags, err := e.update(ctx, filename, batch, flags)

		// Clear the flag before resolving so a ready future never
		// coexists with a file that still reads as updating.
		e.mu.Lock()
		if e.updating[filename]--; e.updating[filename] <= 0 {
			delete(e.updating, filename)
		}
		e.mu.Unlock()

		promise.Resolve(diags, err)
	}()

	return promise
}

func (e *Engine) update(ctx context.Context, filename string, batch completer.SnapshotBatch, flags []string) ([]completer.Diagnostic, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	uri := FilePathToURI(filename)
	seq := e.publishSeq(uri)

	flagsSent, err := e.applyFlags(ctx, filename, flags)
	if err != nil {
		return nil, err
	}
	version, changed, err := e.syncBatch(ctx, filename, batch)
	if err != nil {
		return nil, err
	}

	if err := e.awaitPublish(ctx, uri, version, seq, changed || flagsSent); err != nil {
		return nil, fmt.Errorf("diagnostics for %s: %w", filename, err)
	}

	e.logger.Debug("translation unit updated",
		zap.String("file", filename),
		zap.Int("version", version))
	return e.DiagnosticsForFile(filename), nil
}

// DiagnosticsForFile implements completer.Engine.
func (e *Engine) DiagnosticsForFile(filename string) []completer.Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.published[FilePathToURI(filename)]
	if !ok || len(st.diags) == 0 {
		return nil
	}
	out := make([]completer.Diagnostic, len(st.diags))
	copy(out, st.diags)
	return out
}

// QueryCompletionsAsync implements completer.Engine.
func (e *Engine) QueryCompletionsAsync(ctx context.Context, q completer.CompletionQuery, batch completer.SnapshotBatch, flags []string) completer.Future[[]completer.CompletionCandidate] {
	promise := completer.NewPromise[[]completer.CompletionCandidate]()

	go func() {
		candidates, err := e.complete(ctx, q, batch, flags)
		promise.Resolve(candidates, err)
	}()

	return promise
}

func (e *Engine) complete(ctx context.Context, q completer.CompletionQuery, batch completer.SnapshotBatch, flags []string) ([]completer.CompletionCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := e.applyFlags(ctx, q.Filename, flags); err != nil {
		return nil, err
	}
	if _, _, err := e.syncBatch(ctx, q.Filename, batch); err != nil {
		return nil, err
	}

	params := CompletionParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: FilePathToURI(q.Filename)},
			Position:     e.serverPosition(q.Filename, q.Line-1, q.Column-1),
		},
		Context: &CompletionContext{TriggerKind: CompletionTriggerKindInvoked},
	}

	var raw json.RawMessage
	if err := e.conn.Call(ctx, "textDocument/completion", params, &raw); err != nil {
		return nil, fmt.Errorf("completion %s:%d:%d: %w", q.Filename, q.Line, q.Column, err)
	}
	list, err := ParseCompletionResult(raw)
	if err != nil {
		return nil, err
	}

	candidates := ToCandidates(list.Items, q.Query)
	e.logger.Debug("completions",
		zap.String("file", q.Filename),
		zap.Int("items", len(list.Items)),
		zap.Int("kept", len(candidates)),
		zap.String("query", q.Query))
	return candidates, nil
}

// Close closes every document opened on the server.
func (e *Engine) Close(ctx context.Context) error {
	return e.docs.CloseAll(ctx)
}

// syncBatch sends every snapshot to the server and makes sure filename is
// open, reading it from disk when the batch lacks it. It returns the version
// of filename and whether filename's content was sent.
func (e *Engine) syncBatch(ctx context.Context, filename string, batch completer.SnapshotBatch) (int, bool, error) {
	version, changed := 0, false
	found := false
	for i := 0; i < batch.Len(); i++ {
		s := batch.At(i)
		v, sent, err := e.docs.Sync(ctx, s.Filename, s.Contents)
		if err != nil {
			return 0, false, err
		}
		if s.Filename == filename {
			version, changed, found = v, sent, true
		}
	}
	if found {
		return version, changed, nil
	}
	return e.docs.SyncFromDisk(ctx, filename)
}

// applyFlags tells the server how to compile filename. It reports whether a
// new compile command was sent.
func (e *Engine) applyFlags(ctx context.Context, filename string, flags []string) (bool, error) {
	if len(flags) == 0 {
		return false, nil
	}

	key := strings.Join(flags, "\x00")
	e.mu.Lock()
	same := e.sentFlags[filename] == key
	e.mu.Unlock()
	if same {
		return false, nil
	}

	abs := filename
	if a, err := filepath.Abs(filename); err == nil {
		abs = a
	}
	dir := e.workDir
	if dir == "" {
		dir = filepath.Dir(abs)
	}

	command := make([]string, 0, len(flags)+2)
	command = append(command, e.compiler)
	command = append(command, flags...)
	command = append(command, abs)

	settings := ClangdSettings{
		CompilationDatabaseChanges: map[string]CompileCommand{
			abs: {WorkingDirectory: dir, CompilationCommand: command},
		},
	}
	if err := e.conn.Notify(ctx, "workspace/didChangeConfiguration", DidChangeConfigurationParams{Settings: settings}); err != nil {
		return false, fmt.Errorf("compile flags for %s: %w", filename, err)
	}

	e.mu.Lock()
	e.sentFlags[filename] = key
	e.mu.Unlock()
	e.logger.Debug("compile command sent", zap.String("file", filename), zap.Strings("command", command))
	return true, nil
}

func (e *Engine) publishSeq(uri DocumentURI) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.published[uri]; ok {
		return st.seq
	}
	return 0
}

// awaitPublish waits for diagnostics covering version. When fresh is set the
// publish must also arrive after afterSeq, since the server recomputes on
// every change it was sent.
func (e *Engine) awaitPublish(ctx context.Context, uri DocumentURI, version int, afterSeq uint64, fresh bool) error {
	if !fresh {
		afterSeq = 0
	}

	e.mu.Lock()
	st := e.state(uri)
	if st.seq > afterSeq && st.version >= version {
		e.mu.Unlock()
		return nil
	}
	w := &publishWaiter{version: version, afterSeq: afterSeq, ch: make(chan struct{})}
	st.waiters = append(st.waiters, w)
	e.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		st.waiters = removeWaiter(st.waiters, w)
		e.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return ErrNoDiagnostics
		}
		return ctx.Err()
	}
}

// state returns the publish state for uri, creating it. Caller holds e.mu.
func (e *Engine) state(uri DocumentURI) *publishState {
	st, ok := e.published[uri]
	if !ok {
		st = &publishState{}
		e.published[uri] = st
	}
	return st
}

func (e *Engine) onPublishDiagnostics(_ string, params json.RawMessage) {
	var p PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		e.logger.Warn("malformed publishDiagnostics", zap.Error(err))
		return
	}

	path := e.docs.PathFor(p.URI)
	diags := make([]completer.Diagnostic, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		diags = append(diags, ToDiagnostic(path, e.byteDiagnostic(path, d), e.docs.PathFor))
	}

	version := -1
	if p.Version != nil {
		version = *p.Version
	} else if v, ok := e.docs.Version(path); ok {
		version = v
	}

	e.mu.Lock()
	st := e.state(p.URI)
	st.seq++
	st.version = version
	st.diags = diags
	kept := st.waiters[:0]
	for _, w := range st.waiters {
		if st.seq > w.afterSeq && st.version >= w.version {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	st.waiters = kept
	e.mu.Unlock()

	e.logger.Debug("diagnostics published",
		zap.String("file", path),
		zap.Int("version", version),
		zap.Int("count", len(diags)))
}

// serverPosition converts a 0-based line and byte offset in filename to a
// position in the server's encoding.
func (e *Engine) serverPosition(filename string, line, offset int) Position {
	pos := Position{Line: line, Character: offset}
	if e.encoding == PositionEncodingUTF8 {
		return pos
	}
	if text, ok := e.docs.Line(filename, line); ok {
		pos.Character = ToUnits(text, offset, e.encoding)
	}
	return pos
}

// byteOffset converts pos, in the server's encoding, to a byte offset into
// its line of path. Files never synced keep the server's count.
func (e *Engine) byteOffset(path string, pos Position) Position {
	if e.encoding == PositionEncodingUTF8 {
		return pos
	}
	if text, ok := e.docs.Line(path, pos.Line); ok {
		pos.Character = ToBytes(text, pos.Character, e.encoding)
	}
	return pos
}

// byteDiagnostic rewrites the columns of d as byte offsets.
func (e *Engine) byteDiagnostic(path string, d Diagnostic) Diagnostic {
	if e.encoding == PositionEncodingUTF8 {
		return d
	}
	d.Range.Start = e.byteOffset(path, d.Range.Start)
	if len(d.RelatedInformation) > 0 {
		related := make([]DiagnosticRelatedInformation, len(d.RelatedInformation))
		for i, rel := range d.RelatedInformation {
			rel.Location.Range.Start = e.byteOffset(e.docs.PathFor(rel.Location.URI), rel.Location.Range.Start)
			related[i] = rel
		}
		d.RelatedInformation = related
	}
	return d
}

func removeWaiter(waiters []*publishWaiter, target *publishWaiter) []*publishWaiter {
	for i, w := range waiters {
		if w == target {
			return append(waiters[:i], waiters[i+1:]...)
		}
	}
	return waiters
}
