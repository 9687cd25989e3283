package completer

// BufferSnapshot is the content of one unsaved buffer at request time.
type BufferSnapshot struct {
	Filename string
	Contents string
}

// SnapshotBatch is an ordered, read-only set of buffer snapshots handed to the
// engine for a single request. A batch is never modified after Build returns it.
type SnapshotBatch struct {
	snapshots []BufferSnapshot
}

// NewSnapshotBatch copies snapshots into a new batch.
func NewSnapshotBatch(snapshots ...BufferSnapshot) SnapshotBatch {
	if len(snapshots) == 0 {
		return SnapshotBatch{}
	}
	owned := make([]BufferSnapshot, len(snapshots))
	copy(owned, snapshots)
	return SnapshotBatch{snapshots: owned}
}

// Len returns the number of snapshots.
func (b SnapshotBatch) Len() int {
	return len(b.snapshots)
}

// At returns the i-th snapshot.
func (b SnapshotBatch) At(i int) BufferSnapshot {
	return b.snapshots[i]
}

// All returns a copy of the snapshots.
func (b SnapshotBatch) All() []BufferSnapshot {
	out := make([]BufferSnapshot, len(b.snapshots))
	copy(out, b.snapshots)
	return out
}

// Lookup returns the snapshot for filename, if present.
func (b SnapshotBatch) Lookup(filename string) (BufferSnapshot, bool) {
	for _, s := range b.snapshots {
		if s.Filename == filename {
			return s, true
		}
	}
	return BufferSnapshot{}, false
}

// Severity is the severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "note"
	default:
		return "unknown"
	}
}

// Tag returns the single-letter quickfix type for the severity.
func (s Severity) Tag() string {
	switch s {
	case SeverityError:
		return "E"
	case SeverityWarning:
		return "W"
	case SeverityInformation:
		return "I"
	case SeverityHint:
		return "N"
	default:
		return ""
	}
}

// Diagnostic is a single diagnostic produced by the engine.
// Line and Column are 1-based.
type Diagnostic struct {
	Filename  string
	Line      int
	Column    int
	Severity  Severity
	ShortText string
	LongText  string
}

// CompletionCandidate is a raw completion result from the engine.
type CompletionCandidate struct {
	InsertText   string // text inserted in the buffer
	DisplayText  string // main text shown in the menu
	MenuInfo     string // one-line annotation
	Kind         string
	DetailedInfo string // preview window text
}

// CompletionItem is a completion candidate shaped for the editor menu.
type CompletionItem struct {
	Word string
	Abbr string
	Menu string
	Kind string
	Info string
	Dup  bool
}

// DiagnosticView is a diagnostic shaped for an editor location list.
type DiagnosticView struct {
	BufferNumber int
	Line         int
	Column       int
	Text         string
	Type         string
	Valid        bool
}

// Buffer is an open editor buffer.
type Buffer struct {
	Number   int
	Name     string
	Filetype string
	Lines    []string
}

// CompletionQuery describes a completion request sent to the engine.
// Line and Column are 1-based.
type CompletionQuery struct {
	Query    string
	Filename string
	Line     int
	Column   int
}
