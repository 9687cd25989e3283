package lsp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/clangcomplete/internal/completer"
)

// publishOnSync makes conn answer every didOpen/didChange of a document
// with the given diagnostics, the way clangd does after a rebuild.
func publishOnSync(conn *fakeConn, diags ...Diagnostic) {
	conn.onNotify = func(method string, params json.RawMessage) {
		var doc struct {
			TextDocument struct {
				URI     DocumentURI `json:"uri"`
				Version int         `json:"version"`
			} `json:"textDocument"`
		}
		switch method {
		case "textDocument/didOpen", "textDocument/didChange":
			_ = json.Unmarshal(params, &doc)
		default:
			return
		}
		version := doc.TextDocument.Version
		go conn.emit("textDocument/publishDiagnostics", PublishDiagnosticsParams{
			URI:         doc.TextDocument.URI,
			Version:     &version,
			Diagnostics: diags,
		})
	}
}

func waitFuture[T any](t *testing.T, f completer.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func batchOf(filename, contents string) completer.SnapshotBatch {
	return completer.NewSnapshotBatch(completer.BufferSnapshot{Filename: filename, Contents: contents})
}

func TestEngine_UpdateResolvesWithPublishedDiagnostics(t *testing.T) {
	conn := newFakeConn()
	publishOnSync(conn, Diagnostic{
		Range:    Range{Start: Position{Line: 2, Character: 4}},
		Severity: DiagnosticSeverityError,
		Message:  "use of undeclared identifier 'x'",
	})
	e := NewEngine(conn, WithEngineLogger(zaptest.NewLogger(t)))

	fut := e.UpdateTranslationUnitAsync(context.Background(), "/src/a.cpp", batchOf("/src/a.cpp", "int main() {\n\n    x;\n}"), []string{"-std=c++17"})
	diags, err := waitFuture(t, fut)
	require.NoError(t, err)
	require.Len(t, diags, 1)

	d := diags[0]
	assert.Equal(t, "/src/a.cpp", d.Filename)
	assert.Equal(t, 3, d.Line)
	assert.Equal(t, 5, d.Column)
	assert.Equal(t, completer.SeverityError, d.Severity)
	assert.Equal(t, "use of undeclared identifier 'x'", d.ShortText)
	assert.Equal(t, "/src/a.cpp:3:5: error: use of undeclared identifier 'x'", d.LongText)

	assert.False(t, e.IsUpdatingTranslationUnit("/src/a.cpp"))
	assert.Equal(t, diags, e.DiagnosticsForFile("/src/a.cpp"))
	assert.Nil(t, e.DiagnosticsForFile("/src/other.cpp"))
}

func TestEngine_UpdateReportsUpdating(t *testing.T) {
	conn := newFakeConn()
	e := NewEngine(conn, WithRequestTimeout(time.Second))

	fut := e.UpdateTranslationUnitAsync(context.Background(), "/src/a.c", batchOf("/src/a.c", "int x;"), nil)
	assert.True(t, e.IsUpdatingTranslationUnit("/src/a.c"))
	assert.False(t, fut.Ready())

	require.Eventually(t, func() bool {
		return conn.count("textDocument/didOpen") == 1
	}, time.Second, 5*time.Millisecond)

	version := 1
	conn.emit("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:     FilePathToURI("/src/a.c"),
		Version: &version,
	})

	diags, err := waitFuture(t, fut)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.False(t, e.IsUpdatingTranslationUnit("/src/a.c"))
}

func TestEngine_UnchangedUpdateReusesLastPublish(t *testing.T) {
	conn := newFakeConn()
	publishOnSync(conn, Diagnostic{Message: "warn", Severity: DiagnosticSeverityWarning})
	e := NewEngine(conn)
	ctx := context.Background()
	batch := batchOf("/src/a.c", "int x;")

	_, err := waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.c", batch, []string{"-Wall"}))
	require.NoError(t, err)

	// Nothing changes, so nothing is sent and no publish will come.
	conn.onNotify = nil
	diags, err := waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.c", batch, []string{"-Wall"}))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, completer.SeverityWarning, diags[0].Severity)
	assert.Equal(t, 1, conn.count("textDocument/didOpen"))
	assert.Equal(t, 0, conn.count("textDocument/didChange"))
}

func TestEngine_TimesOutWithoutPublish(t *testing.T) {
	conn := newFakeConn()
	e := NewEngine(conn, WithRequestTimeout(30*time.Millisecond))

	_, err := waitFuture(t, e.UpdateTranslationUnitAsync(context.Background(), "/src/a.c", batchOf("/src/a.c", "x"), nil))
	assert.ErrorIs(t, err, ErrNoDiagnostics)
	assert.False(t, e.IsUpdatingTranslationUnit("/src/a.c"))
}

func TestEngine_FlagsSentAsCompileCommand(t *testing.T) {
	conn := newFakeConn()
	publishOnSync(conn)
	e := NewEngine(conn, WithCompiler("clang++"), WithWorkingDirectory("/build"))
	ctx := context.Background()
	batch := batchOf("/src/a.cpp", "int x;")

	_, err := waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.cpp", batch, []string{"-x", "c++"}))
	require.NoError(t, err)

	raw, ok := conn.lastOf("workspace/didChangeConfiguration")
	require.True(t, ok)
	var params struct {
		Settings ClangdSettings `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(raw, &params))
	abs, _ := filepath.Abs("/src/a.cpp")
	cmd, ok := params.Settings.CompilationDatabaseChanges[abs]
	require.True(t, ok)
	assert.Equal(t, "/build", cmd.WorkingDirectory)
	assert.Equal(t, []string{"clang++", "-x", "c++", abs}, cmd.CompilationCommand)

	// Same flags: not resent.
	_, err = waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.cpp", batch, []string{"-x", "c++"}))
	require.NoError(t, err)
	assert.Equal(t, 1, conn.count("workspace/didChangeConfiguration"))
}

func TestEngine_FlagChangeWaitsForFreshPublish(t *testing.T) {
	conn := newFakeConn()
	publishOnSync(conn)
	e := NewEngine(conn)
	ctx := context.Background()
	batch := batchOf("/src/a.c", "int x;")

	_, err := waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.c", batch, []string{"-O0"}))
	require.NoError(t, err)

	// The server rebuilds after new flags and republishes the same version.
	conn.onNotify = func(method string, _ json.RawMessage) {
		if method != "workspace/didChangeConfiguration" {
			return
		}
		version := 1
		go conn.emit("textDocument/publishDiagnostics", PublishDiagnosticsParams{
			URI:         FilePathToURI("/src/a.c"),
			Version:     &version,
			Diagnostics: []Diagnostic{{Message: "rebuilt"}},
		})
	}

	diags, err := waitFuture(t, e.UpdateTranslationUnitAsync(ctx, "/src/a.c", batch, []string{"-O2"}))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "rebuilt", diags[0].ShortText)
}

func TestEngine_OpensTargetFromDiskWhenNotInBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.c")
	require.NoError(t, os.WriteFile(path, []byte("int y;"), 0o644))

	conn := newFakeConn()
	publishOnSync(conn)
	e := NewEngine(conn)

	_, err := waitFuture(t, e.UpdateTranslationUnitAsync(context.Background(), path, completer.SnapshotBatch{}, nil))
	require.NoError(t, err)
	assert.True(t, e.Documents().IsOpen(path))
}

func TestEngine_QueryCompletions(t *testing.T) {
	conn := newFakeConn()
	var asked CompletionParams
	conn.onCall = func(method string, params json.RawMessage) (any, error) {
		if method == "textDocument/completion" {
			_ = json.Unmarshal(params, &asked)
		}
		return CompletionList{Items: []CompletionItem{
			{Label: " push_back(const T &x)", Kind: CompletionItemKindMethod, Detail: "void", InsertText: "push_back"},
			{Label: " pop_back()", Kind: CompletionItemKindMethod, Detail: "void", InsertText: "pop_back"},
			{Label: " size()", Kind: CompletionItemKindMethod, Detail: "size_type", InsertText: "size"},
		}}, nil
	}
	e := NewEngine(conn)

	q := completer.CompletionQuery{Query: "p", Filename: "/src/v.cpp", Line: 4, Column: 7}
	got, err := waitFuture(t, e.QueryCompletionsAsync(context.Background(), q, batchOf("/src/v.cpp", "..."), []string{"-std=c++17"}))
	require.NoError(t, err)

	assert.Equal(t, Position{Line: 3, Character: 6}, asked.Position)
	assert.Equal(t, FilePathToURI("/src/v.cpp"), asked.TextDocument.URI)

	require.Len(t, got, 2)
	assert.Equal(t, "push_back", got[0].InsertText)
	assert.Equal(t, "push_back(const T &x)", got[0].DisplayText)
	assert.Equal(t, "void", got[0].MenuInfo)
	assert.Equal(t, "f", got[0].Kind)
	assert.Equal(t, "void push_back(const T &x)", got[0].DetailedInfo)
	assert.Equal(t, "pop_back", got[1].InsertText)
}

func TestEngine_QueryCompletionsError(t *testing.T) {
	conn := newFakeConn()
	conn.onCall = func(string, json.RawMessage) (any, error) {
		return nil, &RPCError{Code: CodeInternalError, Message: "crashed"}
	}
	e := NewEngine(conn)

	q := completer.CompletionQuery{Filename: "/src/v.cpp", Line: 1, Column: 1}
	_, err := waitFuture(t, e.QueryCompletionsAsync(context.Background(), q, batchOf("/src/v.cpp", "x"), nil))
	var rpcErr *RPCError
	assert.ErrorAs(t, err, &rpcErr)
}

func TestEngine_CompletionPositionInServerEncoding(t *testing.T) {
	const line = `auto s = "é"; s.`
	tests := []struct {
		name string
		opts []EngineOption
		want int
	}{
		{"utf-16 default", nil, 16},
		{"utf-8 negotiated", []EngineOption{WithPositionEncoding(PositionEncodingUTF8)}, 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			var asked CompletionParams
			conn.onCall = func(method string, params json.RawMessage) (any, error) {
				if method == "textDocument/completion" {
					_ = json.Unmarshal(params, &asked)
				}
				return CompletionList{Items: []CompletionItem{}}, nil
			}
			e := NewEngine(conn, tt.opts...)

			q := completer.CompletionQuery{Filename: "/src/u.cpp", Line: 2, Column: len(line) + 1}
			_, err := waitFuture(t, e.QueryCompletionsAsync(context.Background(), q, batchOf("/src/u.cpp", "int main() {\n"+line+"\n}\n"), nil))
			require.NoError(t, err)
			assert.Equal(t, Position{Line: 1, Character: tt.want}, asked.Position)
		})
	}
}

func TestEngine_DiagnosticColumnsAreBytes(t *testing.T) {
	const content = `const char *s = "é"; int x = y;`
	conn := newFakeConn()
	publishOnSync(conn, Diagnostic{
		Range:    Range{Start: Position{Line: 0, Character: 29}},
		Severity: DiagnosticSeverityError,
		Message:  "use of undeclared identifier 'y'",
	})
	e := NewEngine(conn)

	diags, err := waitFuture(t, e.UpdateTranslationUnitAsync(context.Background(), "/src/u.c", batchOf("/src/u.c", content), []string{"-xc"}))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, 31, diags[0].Column)
	assert.Equal(t, byte('y'), content[diags[0].Column-1])
}
