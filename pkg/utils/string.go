package utils

import "unicode/utf8"

// Truncate shortens s to at most maxLen runes, appending "..." when
// anything was cut.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	i := 0
	for n := range s {
		if i == maxLen {
			return s[:n] + "..."
		}
		i++
	}
	return s
}
