// Package fileid derives transcript source ids and content hashes.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// SourceID returns the source id of a transcript file: its base name up to the first
// dot, so "ep12.en.srt" and "ep12.txt" both belong to "ep12".
func SourceID(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if i := strings.Index(base[1:], "."); i >= 0 {
		return base[:i+1]
	}
	return base
}

// ContentHash returns the hex sha256 of text. Re-ingesting a transcript with the same
// hash can be skipped.
func ContentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
