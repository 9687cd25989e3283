package lsp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ErrDocumentNotOpen is returned when closing a document that was never opened.
var ErrDocumentNotOpen = errors.New("document not open")

// syncedDocument is the server's view of one file.
type syncedDocument struct {
	Path       string
	LanguageID string
	Version    int
	Content    string
}

// DocumentSync mirrors editor buffers into the server with full-text sync.
// The first sync of a path sends didOpen; later syncs send didChange with
// the whole content, and are skipped when the content is unchanged.
type DocumentSync struct {
	mu        sync.Mutex
	conn      Conn
	documents map[DocumentURI]*syncedDocument
}

// NewDocumentSync creates a document sync over conn.
func NewDocumentSync(conn Conn) *DocumentSync {
	return &DocumentSync{
		conn:      conn,
		documents: make(map[DocumentURI]*syncedDocument),
	}
}

// Sync sends content for path to the server. It returns the document version
// the server now holds and whether anything was sent.
func (ds *DocumentSync) Sync(ctx context.Context, path, content string) (int, bool, error) {
	uri := FilePathToURI(path)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, open := ds.documents[uri]
	if open && doc.Content == content {
		return doc.Version, false, nil
	}

	if !open {
		doc = &syncedDocument{
			Path:       path,
			LanguageID: DetectLanguageID(path),
			Version:    1,
			Content:    content,
		}
		params := DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        uri,
				LanguageID: doc.LanguageID,
				Version:    doc.Version,
				Text:       content,
			},
		}
		if err := ds.conn.Notify(ctx, "textDocument/didOpen", params); err != nil {
			return 0, false, fmt.Errorf("didOpen %s: %w", path, err)
		}
		ds.documents[uri] = doc
		return doc.Version, true, nil
	}

	params := DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                doc.Version + 1,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: content}},
	}
	if err := ds.conn.Notify(ctx, "textDocument/didChange", params); err != nil {
		return doc.Version, false, fmt.Errorf("didChange %s: %w", path, err)
	}
	doc.Version++
	doc.Content = content
	return doc.Version, true, nil
}

// SyncFromDisk syncs path unless it is already open, reading it from disk.
func (ds *DocumentSync) SyncFromDisk(ctx context.Context, path string) (int, bool, error) {
	if version, ok := ds.Version(path); ok {
		return version, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}
	return ds.Sync(ctx, path, string(data))
}

// Close sends didClose for path and forgets it.
func (ds *DocumentSync) Close(ctx context.Context, path string) error {
	uri := FilePathToURI(path)

	ds.mu.Lock()
	_, open := ds.documents[uri]
	delete(ds.documents, uri)
	ds.mu.Unlock()

	if !open {
		return ErrDocumentNotOpen
	}

	params := DidCloseTextDocumentParams{TextDocument: TextDocumentIdentifier{URI: uri}}
	if err := ds.conn.Notify(ctx, "textDocument/didClose", params); err != nil {
		return fmt.Errorf("didClose %s: %w", path, err)
	}
	return nil
}

// CloseAll closes every open document, returning the first error.
func (ds *DocumentSync) CloseAll(ctx context.Context) error {
	var first error
	for _, path := range ds.Paths() {
		if err := ds.Close(ctx, path); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Version returns the version the server holds for path.
func (ds *DocumentSync) Version(path string) (int, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, ok := ds.documents[FilePathToURI(path)]
	if !ok {
		return 0, false
	}
	return doc.Version, true
}

// Line returns line n (0-based) of the content the server holds for path.
func (ds *DocumentSync) Line(path string, n int) (string, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, ok := ds.documents[FilePathToURI(path)]
	if !ok {
		return "", false
	}
	return lineOf(doc.Content, n)
}

// PathFor maps uri back to the path it was synced under, so callers see the
// filenames they passed in rather than the absolute form.
func (ds *DocumentSync) PathFor(uri DocumentURI) string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if doc, ok := ds.documents[uri]; ok {
		return doc.Path
	}
	return URIToFilePath(uri)
}

// IsOpen reports whether path has been opened on the server.
func (ds *DocumentSync) IsOpen(path string) bool {
	_, ok := ds.Version(path)
	return ok
}

// Paths returns the paths of all open documents, sorted.
func (ds *DocumentSync) Paths() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	paths := make([]string, 0, len(ds.documents))
	for _, doc := range ds.documents {
		paths = append(paths, doc.Path)
	}
	sort.Strings(paths)
	return paths
}
