package extract

import (
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\ufeff"

// extractPlain decodes a text transcript. Invalid UTF-8 becomes U+FFFD, a leading
// byte order mark is dropped and Windows or old Mac line endings become "\n".
func extractPlain(content []byte) (string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	text = strings.TrimPrefix(text, utf8BOM)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
