package completer

// ShouldTrigger reports whether the text just typed before a 1-based cursor
// column warrants a semantic completion query: a member access "." or a
// "->" / "::" scope operator.
func ShouldTrigger(line string, column int) bool {
	// 1-based column-1 is the character just typed.
	prev := column - 2
	if len(line) == 0 || prev < 0 || prev >= len(line) {
		return false
	}

	if line[prev] == '.' {
		return true
	}

	if prev-1 < 0 {
		return false
	}

	switch line[prev-1 : prev+1] {
	case "->", "::":
		return true
	}
	return false
}
