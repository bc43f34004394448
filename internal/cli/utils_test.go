package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kikoe/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "vector databases",
		QueryTime: 42,
		Results: []*models.SearchResult{
			{SourceID: "ep12", ChunkID: "ep12_chunk_3", Text: strings.Repeat("talk ", 100), Score: 0.91},
			{SourceID: "ep7", ChunkID: "ep7_chunk_0", Text: "short", Score: 0.5},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded struct {
		Query   string `json:"query"`
		Results []struct {
			PodcastTitle string `json:"podcast_title"`
			ChunkID      string `json:"chunk_id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "vector databases" || len(decoded.Results) != 2 {
		t.Errorf("decoded %+v", decoded)
	}
	if decoded.Results[0].PodcastTitle != "ep12" || decoded.Results[0].ChunkID != "ep12_chunk_3" {
		t.Errorf("first result %+v", decoded.Results[0])
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results", "Podcast: ep12", "Chunk: ep7_chunk_0", "0.9100", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Suggestions(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.SearchResponse{Query: "q", Suggestions: []string{"ep1", "ep11"}}
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Did you mean: ep1, ep11?") {
		t.Errorf("missing suggestions:\n%s", buf.String())
	}
}

func TestWriteIngestReport_Text(t *testing.T) {
	report := &models.IngestReport{
		Documents: 3, Chunks: 40, Skipped: 1,
		Failures: []models.DocumentFailure{{SourceID: "bad", Error: "rate limited"}},
	}
	var buf bytes.Buffer
	if err := WriteIngestReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Processed 3 transcripts (40 chunks), 1 unchanged, 1 failed") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "failed bad: rate limited") {
		t.Errorf("missing failure line:\n%s", out)
	}
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	stats := models.StoreStats{Records: 10, Sources: 2, Dimension: 384, DiskBytes: 2048}
	if err := WriteStats(&buf, stats, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Dimension:  384") || !strings.Contains(buf.String(), "2.0 KiB") {
		t.Errorf("unexpected stats output:\n%s", buf.String())
	}
	buf.Reset()
	if err := WriteStats(&buf, stats, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.StoreStats
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded != stats {
		t.Errorf("json stats = %+v, err %v", decoded, err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KiB",
		1536:        "1.5 KiB",
		5 * 1 << 20: "5.0 MiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "JSON": OutputJSON} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
