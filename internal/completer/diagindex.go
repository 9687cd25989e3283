package completer

import "sync/atomic"

// lineDiagnostics maps a 1-based line to its diagnostics in engine order.
type lineDiagnostics map[int][]Diagnostic

// diagnosticTable is an immutable filename -> line -> diagnostics table.
type diagnosticTable map[string]lineDiagnostics

// DiagnosticIndex holds the diagnostics of the most recent parse of each file.
// Readers always see a complete table; writers build a new table and swap it in.
type DiagnosticIndex struct {
	table atomic.Pointer[diagnosticTable]
}

// NewDiagnosticIndex creates an empty index.
func NewDiagnosticIndex() *DiagnosticIndex {
	idx := &DiagnosticIndex{}
	empty := diagnosticTable{}
	idx.table.Store(&empty)
	return idx
}

// Replace installs the diagnostics of a parse of filename. The entry for
// filename is rebuilt even when diags is empty, as is the entry of any other
// file diags refer to. Entries for other files are left as they are.
func (idx *DiagnosticIndex) Replace(filename string, diags []Diagnostic) {
	rebuilt := make(diagnosticTable)
	rebuilt[filename] = lineDiagnostics{}
	for _, d := range diags {
		lines, ok := rebuilt[d.Filename]
		if !ok {
			lines = lineDiagnostics{}
			rebuilt[d.Filename] = lines
		}
		lines[d.Line] = append(lines[d.Line], d)
	}

	for {
		old := idx.table.Load()
		next := make(diagnosticTable, len(*old)+len(rebuilt))
		for name, lines := range *old {
			next[name] = lines
		}
		for name, lines := range rebuilt {
			if len(lines) == 0 {
				delete(next, name)
				continue
			}
			next[name] = lines
		}
		if idx.table.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Lookup returns the diagnostics on a 1-based line of filename in original order.
func (idx *DiagnosticIndex) Lookup(filename string, line int) []Diagnostic {
	lines, ok := (*idx.table.Load())[filename]
	if !ok {
		return nil
	}
	diags := lines[line]
	if len(diags) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(diags))
	copy(out, diags)
	return out
}

// Count returns the number of diagnostics indexed for filename.
func (idx *DiagnosticIndex) Count(filename string) int {
	n := 0
	for _, diags := range (*idx.table.Load())[filename] {
		n += len(diags)
	}
	return n
}

// Nearest returns the diagnostic on line whose column is closest to column.
// On equal distance the diagnostic found first wins.
func (idx *DiagnosticIndex) Nearest(filename string, line, column int) (Diagnostic, bool) {
	return nearestByColumn(idx.Lookup(filename, line), column)
}

func nearestByColumn(diags []Diagnostic, column int) (Diagnostic, bool) {
	if len(diags) == 0 {
		return Diagnostic{}, false
	}

	best := diags[0]
	bestDistance := abs(column - best.Column)
	for _, d := range diags[1:] {
		if distance := abs(column - d.Column); distance < bestDistance {
			best = d
			bestDistance = distance
		}
	}
	return best, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
