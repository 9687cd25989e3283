package completer

// CompletionItemFrom shapes an engine candidate for the completion menu.
func CompletionItemFrom(c CompletionCandidate) CompletionItem {
	return CompletionItem{
		Word: c.InsertText,
		Abbr: c.DisplayText,
		Menu: c.MenuInfo,
		Kind: c.Kind,
		Info: c.DetailedInfo,
		Dup:  true,
	}
}

// DiagnosticViewFrom shapes a diagnostic for a location list. bufnr resolves
// the diagnostic's file to an editor buffer number.
func DiagnosticViewFrom(d Diagnostic, bufnr func(string) int) DiagnosticView {
	return DiagnosticView{
		BufferNumber: bufnr(d.Filename),
		Line:         d.Line,
		Column:       d.Column,
		Text:         d.ShortText,
		Type:         d.Severity.Tag(),
		Valid:        true,
	}
}

func completionItems(candidates []CompletionCandidate) []CompletionItem {
	items := make([]CompletionItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, CompletionItemFrom(c))
	}
	return items
}

// diagnosticViews maps at most max diagnostics; max <= 0 means no limit.
func diagnosticViews(diags []Diagnostic, max int, bufnr func(string) int) []DiagnosticView {
	if max > 0 && len(diags) > max {
		diags = diags[:max]
	}
	views := make([]DiagnosticView, 0, len(diags))
	for _, d := range diags {
		views = append(views, DiagnosticViewFrom(d, bufnr))
	}
	return views
}
