package completer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_ResolveOnce(t *testing.T) {
	p := NewPromise[int]()
	assert.False(t, p.Ready())

	assert.True(t, p.Resolve(1, nil))
	assert.False(t, p.Resolve(2, errors.New("late")))
	assert.True(t, p.Ready())

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPromise_WaitBlocksUntilResolved(t *testing.T) {
	p := NewPromise[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Resolve("done", nil)
	}()

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}

func TestPromise_WaitHonoursContext(t *testing.T) {
	p := NewPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolved(t *testing.T) {
	boom := errors.New("boom")
	p := Resolved([]string{"a"}, boom)

	assert.True(t, p.Ready())
	v, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, v)
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		sev  Severity
		name string
		tag  string
	}{
		{SeverityError, "error", "E"},
		{SeverityWarning, "warning", "W"},
		{SeverityInformation, "info", "I"},
		{SeverityHint, "note", "N"},
		{Severity(0), "unknown", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.sev.String())
		assert.Equal(t, tt.tag, tt.sev.Tag())
	}
}

func TestDiagnosticViews_Cap(t *testing.T) {
	diags := []Diagnostic{
		{Filename: "a.c", Line: 1},
		{Filename: "b.c", Line: 2},
		{Filename: "a.c", Line: 3},
	}
	numbers := map[string]int{"a.c": 4, "b.c": 7}
	bufnr := func(name string) int { return numbers[name] }

	views := diagnosticViews(diags, 2, bufnr)
	require.Len(t, views, 2)
	assert.Equal(t, 4, views[0].BufferNumber)
	assert.Equal(t, 7, views[1].BufferNumber)
	assert.True(t, views[1].Valid)

	assert.Len(t, diagnosticViews(diags, 0, bufnr), 3)
}
