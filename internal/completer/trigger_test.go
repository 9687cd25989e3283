package completer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		column int
		want   bool
	}{
		{"dot", "foo.", 5, true},
		{"arrow", "foo->", 6, true},
		{"scope", "std::", 6, true},
		{"single colon", "foo:", 5, false},
		{"column zero", "f", 0, false},
		{"negative column", "foo.", -3, false},
		{"beyond line", "foo.", 7, false},
		{"empty line", "", 1, false},
		{"plain identifier", "foo", 4, false},
		{"dot earlier in line", "a.b", 4, false},
		{"dot at line start", ".", 2, true},
		{"lone greater-than", ">", 2, false},
		{"arrow mid line", "p->x", 4, true},
		{"minus only", "a-", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTrigger(tt.line, tt.column))
		})
	}
}

func TestShouldTrigger_TotalOverColumns(t *testing.T) {
	line := "a->b::c.d"
	for col := -5; col < len(line)+5; col++ {
		assert.NotPanics(t, func() { ShouldTrigger(line, col) })
	}
}
