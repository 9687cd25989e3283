package lsp

import (
	"fmt"
	"strings"

	"github.com/dshills/clangcomplete/internal/completer"
)

// toSeverity maps an LSP severity. Servers may omit it; treat that as an error.
func toSeverity(s DiagnosticSeverity) completer.Severity {
	switch s {
	case DiagnosticSeverityWarning:
		return completer.SeverityWarning
	case DiagnosticSeverityInformation:
		return completer.SeverityInformation
	case DiagnosticSeverityHint:
		return completer.SeverityHint
	default:
		return completer.SeverityError
	}
}

// ToDiagnostic converts an LSP diagnostic published for path.
// LSP positions are 0-based; the result is 1-based.
func ToDiagnostic(path string, d Diagnostic, pathFor func(DocumentURI) string) completer.Diagnostic {
	sev := toSeverity(d.Severity)
	line := d.Range.Start.Line + 1
	col := d.Range.Start.Character + 1

	short := d.Message
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short = short[:i]
	}

	var long strings.Builder
	fmt.Fprintf(&long, "%s:%d:%d: %s: %s", path, line, col, sev, d.Message)
	for _, rel := range d.RelatedInformation {
		relPath := URIToFilePath(rel.Location.URI)
		if pathFor != nil {
			relPath = pathFor(rel.Location.URI)
		}
		fmt.Fprintf(&long, "\n%s:%d:%d: note: %s",
			relPath,
			rel.Location.Range.Start.Line+1,
			rel.Location.Range.Start.Character+1,
			rel.Message)
	}

	return completer.Diagnostic{
		Filename:  path,
		Line:      line,
		Column:    col,
		Severity:  sev,
		ShortText: short,
		LongText:  long.String(),
	}
}

// KindLetter returns the vim completion kind for an LSP item kind:
// v variable, f function, m member, t type, d macro.
func KindLetter(kind CompletionItemKind) string {
	switch kind {
	case CompletionItemKindFunction, CompletionItemKindMethod, CompletionItemKindConstructor:
		return "f"
	case CompletionItemKindField, CompletionItemKindProperty:
		return "m"
	case CompletionItemKindVariable, CompletionItemKindValue,
		CompletionItemKindConstant, CompletionItemKindEnumMember:
		return "v"
	case CompletionItemKindClass, CompletionItemKindStruct, CompletionItemKindInterface,
		CompletionItemKindEnum, CompletionItemKindTypeParameter:
		return "t"
	case CompletionItemKindText:
		// clangd reports macros as plain text.
		return "d"
	default:
		return ""
	}
}

// insertText picks the text an item inserts into the buffer.
func insertText(item CompletionItem) string {
	switch {
	case item.TextEdit != nil && item.TextEdit.NewText != "":
		return item.TextEdit.NewText
	case item.InsertText != "":
		return item.InsertText
	default:
		return strings.TrimSpace(item.Label)
	}
}

// filterText is the text matched against the typed query.
func filterText(item CompletionItem) string {
	if item.FilterText != "" {
		return item.FilterText
	}
	return insertText(item)
}

// ToCandidate converts an LSP completion item into an engine candidate.
func ToCandidate(item CompletionItem) completer.CompletionCandidate {
	display := strings.TrimSpace(item.Label)

	detailed := display
	if item.Detail != "" {
		detailed = item.Detail + " " + display
	}
	if doc := strings.TrimSpace(ExtractDocumentation(item.Documentation)); doc != "" {
		detailed += "\n" + doc
	}

	return completer.CompletionCandidate{
		InsertText:   insertText(item),
		DisplayText:  display,
		MenuInfo:     item.Detail,
		Kind:         KindLetter(item.Kind),
		DetailedInfo: detailed,
	}
}

// ToCandidates converts items whose filter text starts with query.
// The match is case-sensitive; an empty query keeps everything.
func ToCandidates(items []CompletionItem, query string) []completer.CompletionCandidate {
	out := make([]completer.CompletionCandidate, 0, len(items))
	for _, item := range items {
		if query != "" && !strings.HasPrefix(filterText(item), query) {
			continue
		}
		out = append(out, ToCandidate(item))
	}
	return out
}
