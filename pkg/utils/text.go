// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most maxLen runes and appends "..." when anything was cut.
// It never splits a multi-byte character; trailing spaces before the ellipsis are
// dropped. A maxLen of zero or less returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	cut := 0
	for i := range s {
		if cut == maxLen {
			return strings.TrimRight(s[:i], " \t\n") + "..."
		}
		cut++
	}
	return s
}
