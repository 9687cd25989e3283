package lsp

import (
	"strings"
	"unicode/utf8"
)

// runeUnits is the width of r in enc.
func runeUnits(r rune, enc PositionEncodingKind) int {
	switch enc {
	case PositionEncodingUTF32:
		return 1
	case PositionEncodingUTF8:
		return utf8.RuneLen(r)
	default:
		if r >= 0x10000 {
			return 2
		}
		return 1
	}
}

// ToUnits converts a byte offset into line to an offset in enc units.
// Offsets past the end of line carry over one unit per byte.
func ToUnits(line string, offset int, enc PositionEncodingKind) int {
	if enc == PositionEncodingUTF8 || offset <= 0 {
		return offset
	}
	units, i := 0, 0
	for i < len(line) && i < offset {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r == utf8.RuneError && size == 1 {
			units++
		} else {
			units += runeUnits(r, enc)
		}
		i += size
	}
	return units + max(offset-i, 0)
}

// ToBytes converts an offset in enc units into line to a byte offset. A
// unit offset inside a surrogate pair lands on the start of its rune.
func ToBytes(line string, units int, enc PositionEncodingKind) int {
	if enc == PositionEncodingUTF8 || units <= 0 {
		return units
	}
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		w := 1
		if r != utf8.RuneError || size != 1 {
			w = runeUnits(r, enc)
		}
		if w > units {
			return i
		}
		units -= w
		i += size
	}
	return i + units
}

// lineOf returns line n (0-based) of content without its line ending.
func lineOf(content string, n int) (string, bool) {
	for ; n > 0; n-- {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			return "", false
		}
		content = content[i+1:]
	}
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	return strings.TrimSuffix(content, "\r"), true
}
