package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// cueWords is the number of words per subtitle cue.
const cueWords = 8

// TranscriptFile renders text as the bytes of a transcript file with the given extension.
// The extracted text of the result has the same words in the same order.
func TranscriptFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(text), nil
	case ".srt":
		return subtitles(text, false), nil
	case ".vtt":
		return subtitles(text, true), nil
	case ".docx":
		return minimalDocx(text)
	default:
		return nil, fmt.Errorf("unsupported transcript format %q", ext)
	}
}

func subtitles(text string, vtt bool) []byte {
	var b strings.Builder
	if vtt {
		b.WriteString("WEBVTT\n\n")
	}
	words := strings.Fields(text)
	for i, cue := 0, 0; i < len(words); i, cue = i+cueWords, cue+1 {
		end := i + cueWords
		if end > len(words) {
			end = len(words)
		}
		start, stop := cue*3, cue*3+3
		if vtt {
			fmt.Fprintf(&b, "00:%02d.000 --> 00:%02d.000\n", start%60, stop%60)
		} else {
			fmt.Fprintf(&b, "%d\n00:00:%02d,000 --> 00:00:%02d,000\n", cue+1, start%60, stop%60)
		}
		b.WriteString(strings.Join(words[i:end], " "))
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

func minimalDocx(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	_, err = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
