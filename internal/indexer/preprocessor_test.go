package indexer

import "testing"

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "  Host:\thello\r\n\n  Guest: hi  ", "Host: hello Guest: hi"},
		{"drops zero-width characters", "vec\u200btor\ufeff search", "vector search"},
		{"soft hyphen", "embed\u00addings", "embeddings"},
		{"keeps non-breaking text", "café 聞こえる", "café 聞こえる"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.in); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
