// Package cli formats Kikoe command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (use text or json)", models.ErrInvalidInput, s)
	}
}

// previewLen is how much of a chunk the text output shows.
const previewLen = 300

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", len(response.Results), response.Query, response.QueryTime)
	if len(response.Suggestions) > 0 {
		fmt.Fprintf(w, "No transcripts under that podcast. Did you mean: %s?\n\n", strings.Join(response.Suggestions, ", "))
	}
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d | Score: %.4f | Podcast: %s | Chunk: %s\n", i+1, result.Score, result.SourceID, result.ChunkID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Text, previewLen))
	}
	return nil
}

// WriteIngestReport writes the outcome of an ingestion run.
func WriteIngestReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Processed %d transcripts (%d chunks), %d unchanged, %d failed\n",
		report.Documents, report.Chunks, report.Skipped, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.SourceID, f.Error)
	}
	return nil
}

// WriteStats writes store statistics.
func WriteStats(w io.Writer, stats models.StoreStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Records:    %d\n", stats.Records)
	fmt.Fprintf(w, "Sources:    %d\n", stats.Sources)
	fmt.Fprintf(w, "Dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(stats.DiskBytes))
	return nil
}

// FormatBytes renders n bytes with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
