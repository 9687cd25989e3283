// Package lsp drives a C-family language server (clangd by default) and
// exposes it as a completer.Engine.
//
// # Architecture
//
//   - Transport: JSON-RPC 2.0 over stdio with Content-Length framing
//   - Server: the child process, initialize handshake and shutdown
//   - DocumentSync: full-text didOpen/didChange mirroring of buffers
//   - Engine: parses, diagnostics and completions on top of a Conn
//
// # Quick Start
//
//	srv := lsp.NewServer(lsp.ServerConfig{WorkDir: root}, logger)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
//
//	engine := lsp.NewEngine(srv.Conn(), lsp.WithEngineLogger(logger))
//	coord := completer.New(engine, host, flagsSource)
//
// # Compile Flags
//
// Flags reach the server through clangd's compilationDatabaseChanges
// setting on workspace/didChangeConfiguration. A command is only resent
// when the flags for a file change.
//
// # Diagnostics
//
// A parse resolves when the server publishes diagnostics for the file at or
// after the version that was synced. If nothing was sent because neither
// content nor flags changed, the last published diagnostics are reused.
//
// # Thread Safety
//
// Transport, DocumentSync and Engine are safe for concurrent use.
package lsp
