// Package completer coordinates semantic completion and diagnostic requests
// between an editor and a source-analysis engine.
//
// The package does not parse code. It decides when a query is worth sending,
// snapshots unsaved buffers for the engine, keeps at most one parse and one
// completion request in flight, and indexes the diagnostics of the last parse
// for line/column lookup.
//
// # Architecture
//
//   - SnapshotBuilder: turns open editor buffers into an immutable SnapshotBatch
//   - ShouldTrigger: decides whether the text before the cursor warrants a query
//   - DiagnosticIndex: filename -> line -> diagnostics, replaced per parse
//   - Coordinator: owns the pending parse and completion operations
//
// # Usage
//
// The editor loop drives the coordinator from a single goroutine:
//
//	c := completer.New(engine, host, flagsSource,
//	    completer.WithMaxDiagnostics(30),
//	    completer.WithLogger(logger),
//	)
//
//	// On buffer change / idle
//	_ = c.RequestParse(ctx)
//
//	// On each tick
//	if c.IsDiagnosticsReady() {
//	    views, err := c.FetchDiagnostics(ctx)
//	    ...
//	}
//
//	// On completion
//	if c.ShouldUseNow(startColumn) {
//	    c.RequestCompletions(ctx, "", file, line, startColumn)
//	    items, err := c.FetchCompletionResults(ctx)
//	}
//
// # Concurrency
//
// Coordinator methods may be called from any goroutine but are designed for a
// single editor event goroutine. FetchCompletionResults is the only method that
// blocks on the engine. The DiagnosticIndex is swapped atomically as a whole, so
// lookups never observe a half-built index.
package completer
