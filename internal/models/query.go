package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopK is used when a query does not ask for a result count.
	DefaultTopK = 10
	// MaxTopK is the query engine's result cap unless configured otherwise.
	MaxTopK = 100
)

// Filter restricts a search to records whose source id equals SourceID.
type Filter struct {
	SourceID string `json:"source_id"`
}

// Matches reports whether a record with the given source id passes the filter.
// A nil filter matches everything.
func (f *Filter) Matches(sourceID string) bool {
	return f == nil || f.SourceID == sourceID
}

// SearchQuery is a similarity search request.
type SearchQuery struct {
	Search  string `json:"search"`
	TopK    int    `json:"top_k,omitempty"`
	Podcast string `json:"podcast,omitempty"` // exact source id filter
	Local   *bool  `json:"local,omitempty"`   // nil selects the configured provider
}

// Validate trims the query text, rejects empty queries, and applies the default top_k.
// The upper bound on top_k is left to the engine.
func (q *SearchQuery) Validate() error {
	q.Search = strings.TrimSpace(q.Search)
	if q.Search == "" {
		return fmt.Errorf("%w: search cannot be empty", ErrInvalidInput)
	}
	if q.TopK < 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidInput, q.TopK)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	return nil
}

// Filter returns the source filter for the query, or nil when none was given.
func (q *SearchQuery) Filter() *Filter {
	if q.Podcast == "" {
		return nil
	}
	return &Filter{SourceID: q.Podcast}
}

// SearchResult is one ranked hit.
type SearchResult struct {
	SourceID string  `json:"podcast_title"`
	ChunkID  string  `json:"chunk_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Results   []*SearchResult `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
	// Suggestions lists indexed source ids close to a podcast filter that names no
	// indexed source.
	Suggestions []string `json:"suggestions,omitempty"`
}
