package completer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notices posted to the host.
const (
	NoticeStillParsing  = "Still parsing file, no completions yet."
	NoticeNoFlags       = "Still no compile flags, no completions yet."
	NoticeNoCompletions = "No completions found; errors in the file?"
	NoticeNoDiagnostic  = "No diagnostic for current line!"
)

// Ticket identifies a dispatched engine request.
type Ticket struct {
	Generation uint64
	Filename   string
}

// pendingOp is an in-flight engine request. The batch is held until the
// operation is dropped so its buffers outlive the engine call.
type pendingOp[T any] struct {
	future     Future[T]
	filename   string
	generation uint64
	batch      SnapshotBatch
}

func (op *pendingOp[T]) ticket() *Ticket {
	return &Ticket{Generation: op.generation, Filename: op.filename}
}

// Coordinator owns the single outstanding parse and completion request of an
// editing session.
type Coordinator struct {
	mu sync.Mutex

	engine  Engine
	host    Host
	flags   FlagsSource
	builder *SnapshotBuilder
	index   *DiagnosticIndex

	cfg     Config
	logger  *zap.Logger
	session string

	generation      uint64
	completion      *pendingOp[[]CompletionCandidate]
	parse           *pendingOp[[]Diagnostic]
	lastDiagnostics []DiagnosticView
}

// New creates a coordinator.
func New(engine Engine, host Host, flags FlagsSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:  engine,
		host:    host,
		flags:   flags,
		index:   NewDiagnosticIndex(),
		cfg:     DefaultConfig(),
		logger:  zap.NewNop(),
		session: uuid.NewString(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.builder = NewSnapshotBuilder(c.cfg.Filetypes...)
	c.logger = c.logger.With(zap.String("session", c.session))
	return c
}

// Index returns the diagnostic index.
func (c *Coordinator) Index() *DiagnosticIndex {
	return c.index
}

// SupportedFiletypes returns the filetypes sent to the engine.
func (c *Coordinator) SupportedFiletypes() []string {
	return append([]string(nil), c.cfg.Filetypes...)
}

// ShouldUseNow reports whether a semantic query is worthwhile for a completion
// starting at the 0-based startColumn of the current line.
func (c *Coordinator) ShouldUseNow(startColumn int) bool {
	return ShouldTrigger(c.host.CurrentLine(), startColumn+1)
}

// --- Completion ---

// RequestCompletions dispatches a completion query at a 1-based location and
// replaces any previous completion request. It returns nil without
// dispatching while filename is being parsed or has no flags yet.
func (c *Coordinator) RequestCompletions(ctx context.Context, query, filename string, line, column int) *Ticket {
	if c.parsing(filename) {
		c.rejectCompletion(filename, NoticeStillParsing)
		return nil
	}

	flags := c.flagsFor(filename)
	if len(flags) == 0 {
		c.rejectCompletion(filename, NoticeNoFlags)
		return nil
	}

	// With a query the engine filters its cached results; the buffers are
	// only needed for a fresh full-context completion.
	var batch SnapshotBatch
	if query == "" {
		batch = c.builder.Build(c.host.OpenBuffers())
	}

	q := CompletionQuery{Query: query, Filename: filename, Line: line, Column: column}
	future := c.engine.QueryCompletionsAsync(ctx, q, batch, flags)

	c.mu.Lock()
	c.generation++
	op := &pendingOp[[]CompletionCandidate]{
		future:     future,
		filename:   filename,
		generation: c.generation,
		batch:      batch,
	}
	c.completion = op
	c.mu.Unlock()

	c.logger.Debug("completion dispatched",
		zap.Uint64("generation", op.generation),
		zap.String("file", filename),
		zap.Int("line", line),
		zap.Int("column", column),
		zap.String("query", query),
		zap.Int("snapshots", batch.Len()))

	return op.ticket()
}

func (c *Coordinator) rejectCompletion(filename, notice string) {
	c.mu.Lock()
	c.completion = nil
	c.mu.Unlock()

	c.logger.Debug("completion rejected", zap.String("file", filename), zap.String("reason", notice))
	c.host.PostMessage(notice)
}

// FetchCompletionResults waits for the pending completion request and returns
// its results shaped for the menu. It returns nothing when no request is
// pending or when the request was superseded while waiting.
func (c *Coordinator) FetchCompletionResults(ctx context.Context) ([]CompletionItem, error) {
	c.mu.Lock()
	op := c.completion
	c.mu.Unlock()

	if op == nil {
		return nil, nil
	}

	candidates, err := op.future.Wait(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	current := c.completion != nil && c.completion.generation == op.generation
	c.mu.Unlock()

	if !current {
		c.logger.Debug("stale completion dropped",
			zap.Uint64("generation", op.generation),
			zap.String("file", op.filename))
		return nil, nil
	}

	items := completionItems(candidates)
	if len(items) == 0 {
		c.host.PostMessage(NoticeNoCompletions)
	}
	return items, nil
}

// --- Parse / diagnostics ---

// RequestParse dispatches a reparse of the current buffer. It does nothing
// for buffers shorter than the configured threshold, while the buffer is
// already being parsed, or before flags are known.
func (c *Coordinator) RequestParse(ctx context.Context) *Ticket {
	buf := c.host.CurrentBuffer()

	if len(buf.Lines) < c.cfg.MinLinesToParse {
		c.clearParse()
		return nil
	}

	if c.parsing(buf.Name) {
		c.logger.Debug("parse already in flight", zap.String("file", buf.Name))
		return nil
	}

	flags := c.flagsFor(buf.Name)
	if len(flags) == 0 {
		c.clearParse()
		return nil
	}

	batch := c.builder.Build(c.host.OpenBuffers())
	future := c.engine.UpdateTranslationUnitAsync(ctx, buf.Name, batch, flags)

	c.mu.Lock()
	c.generation++
	op := &pendingOp[[]Diagnostic]{
		future:     future,
		filename:   buf.Name,
		generation: c.generation,
		batch:      batch,
	}
	prev := c.parse
	c.parse = op
	c.mu.Unlock()

	// Only one parse handle is held. An unresolved parse of another file
	// keeps running in the engine but its result is never fetched.
	if prev != nil && !prev.future.Ready() {
		c.logger.Debug("unresolved parse dropped",
			zap.Uint64("generation", prev.generation),
			zap.String("file", prev.filename))
	}

	c.logger.Debug("parse dispatched",
		zap.Uint64("generation", op.generation),
		zap.String("file", buf.Name),
		zap.Int("snapshots", batch.Len()),
		zap.Int("flags", len(flags)))

	return op.ticket()
}

func (c *Coordinator) clearParse() {
	c.mu.Lock()
	c.parse = nil
	c.mu.Unlock()
}

// parsing reports whether filename has a parse in flight, either known to the
// engine or still unresolved in our own handle.
func (c *Coordinator) parsing(filename string) bool {
	if c.engine.IsUpdatingTranslationUnit(filename) {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parse != nil && c.parse.filename == filename && !c.parse.future.Ready()
}

// IsDiagnosticsReady reports whether a pending parse has finished. It does not
// consume the result.
func (c *Coordinator) IsDiagnosticsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parse != nil && c.parse.future.Ready()
}

// FetchDiagnostics consumes a finished parse, if any, rebuilding the index for
// the parsed file, and returns the capped diagnostic list. Without a finished
// parse it returns the list from the last consumption.
func (c *Coordinator) FetchDiagnostics(ctx context.Context) ([]DiagnosticView, error) {
	c.mu.Lock()
	op := c.parse
	if op == nil || !op.future.Ready() {
		cached := append([]DiagnosticView(nil), c.lastDiagnostics...)
		c.mu.Unlock()
		return cached, nil
	}
	c.parse = nil
	c.mu.Unlock()

	if _, err := op.future.Wait(ctx); err != nil {
		return nil, err
	}

	diags := c.engine.DiagnosticsForFile(op.filename)
	c.index.Replace(op.filename, diags)
	views := diagnosticViews(diags, c.cfg.MaxDiagnosticsToDisplay, c.host.BufferNumber)

	c.mu.Lock()
	c.lastDiagnostics = views
	c.mu.Unlock()

	c.logger.Debug("diagnostics consumed",
		zap.Uint64("generation", op.generation),
		zap.String("file", op.filename),
		zap.Int("total", len(diags)),
		zap.Int("shown", len(views)))

	return append([]DiagnosticView(nil), views...), nil
}

// ShowDetailedDiagnosticAtCursor echoes the full text of the diagnostic
// nearest the cursor in the current buffer.
func (c *Coordinator) ShowDetailedDiagnosticAtCursor() (Diagnostic, bool) {
	line, column := c.host.Cursor()
	return c.ShowDetailedDiagnostic(line, column, c.host.CurrentBuffer().Name)
}

// ShowDetailedDiagnostic echoes the full text of the diagnostic nearest a
// 0-based editor position in filename.
func (c *Coordinator) ShowDetailedDiagnostic(line, column int, filename string) (Diagnostic, bool) {
	// Editor positions are 0-based, engine positions 1-based.
	d, ok := c.index.Nearest(filename, line+1, column+1)
	if !ok {
		c.host.PostMessage(NoticeNoDiagnostic)
		return Diagnostic{}, false
	}
	c.host.EchoText(d.LongText)
	return d, true
}

// --- Debug ---

// DescribeFlags returns the flags for filename formatted for display.
func (c *Coordinator) DescribeFlags(filename string) string {
	flags := c.flagsFor(filename)
	quoted := make([]string, len(flags))
	for i, f := range flags {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf("Flags for %s:\n[%s]", filename, strings.Join(quoted, ", "))
}

// DebugInfo describes the flags of the current buffer.
func (c *Coordinator) DebugInfo() string {
	return c.DescribeFlags(c.host.CurrentBuffer().Name)
}

func (c *Coordinator) flagsFor(filename string) []string {
	if c.flags == nil {
		return nil
	}
	flags, err := c.flags.FlagsForFile(filename)
	if err != nil {
		c.logger.Warn("flags lookup failed", zap.String("file", filename), zap.Error(err))
		return nil
	}
	return flags
}
