// Package extract turns transcript files into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the extensions with a dedicated extractor.
var SupportedExtensions = []string{".txt", ".md", ".pdf", ".docx", ".srt", ".vtt"}

// Extractor extracts plain text from transcript files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the transcript at path and returns its text. Errors name the file.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	text, err := e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return "", fmt.Errorf("transcript %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Subtitle files lose their cue
// numbers and timings; unknown extensions are read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".srt", ".vtt":
		return extractSubtitles(content)
	default:
		return extractPlain(content)
	}
}
