package extract

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// cueTiming matches SRT ("00:00:01,000 --> 00:00:04,000") and WebVTT ("00:01.000 --> 00:04.000 align:start") timing lines.
var cueTiming = regexp.MustCompile(`^\s*(\d+:)?\d{1,2}:\d{2}[.,]\d{3}\s+-->\s+(\d+:)?\d{1,2}:\d{2}[.,]\d{3}`)

var cueNumber = regexp.MustCompile(`^\d+$`)

// voiceTag matches inline WebVTT/SRT markup such as <v Speaker>, <i>, </b>.
var voiceTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// extractSubtitles returns the spoken text of an SRT or WebVTT file, one cue per line.
func extractSubtitles(content []byte) (string, error) {
	text, err := extractPlain(content)
	if err != nil {
		return "", err
	}
	text = strings.TrimPrefix(text, "\ufeff")

	var out []string
	var cue []string
	inNote := false
	flush := func() {
		if len(cue) > 0 {
			out = append(out, strings.Join(cue, " "))
			cue = cue[:0]
		}
	}
	sc := bufio.NewScanner(bytes.NewReader([]byte(text)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
			inNote = false
		case inNote:
		case strings.HasPrefix(line, "WEBVTT"):
		case strings.HasPrefix(line, "NOTE"), strings.HasPrefix(line, "STYLE"), strings.HasPrefix(line, "REGION"):
			inNote = true
		case cueTiming.MatchString(line):
			// a cue identifier directly above the timing is not spoken text
			if len(cue) == 1 {
				cue = cue[:0]
			}
		case cueNumber.MatchString(line) && len(cue) == 0:
		default:
			if stripped := strings.TrimSpace(voiceTag.ReplaceAllString(line, "")); stripped != "" {
				cue = append(cue, stripped)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	flush()
	return strings.Join(out, "\n"), nil
}
