package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes transcript text before hashing and chunking. Invisible format
// characters (zero-width spaces, byte order marks, soft hyphens) are removed and every
// run of whitespace becomes a single space, so re-exported copies of the same
// transcript hash identically.
func Preprocess(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
