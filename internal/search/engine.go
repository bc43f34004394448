// Package search answers similarity queries over indexed transcripts.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/storage"
	"go.uber.org/zap"
)

// EmbedderSource returns the embedder for a query: the local one when useLocal is
// true, the remote one otherwise.
type EmbedderSource interface {
	For(useLocal bool) (embedding.Embedder, error)
	Default() (embedding.Embedder, error)
}

// Engine embeds queries and searches the transcript store.
type Engine struct {
	store     storage.Store
	embedders EmbedderSource
	maxTopK   int
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMaxTopK caps the number of results per query.
func WithMaxTopK(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTopK = n
		}
	}
}

// NewEngine creates a search engine over store.
func NewEngine(store storage.Store, embedders EmbedderSource, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		embedders: embedders,
		maxTopK:   models.MaxTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search validates query, embeds its text with the requested provider, and returns the
// most similar chunks, restricted to query.Podcast when set.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.TopK > e.maxTopK {
		query.TopK = e.maxTopK
	}

	var (
		embedder embedding.Embedder
		err      error
	)
	if query.Local != nil {
		embedder, err = e.embedders.For(*query.Local)
	} else {
		embedder, err = e.embedders.Default()
	}
	if err != nil {
		return nil, err
	}

	vec, err := embedder.Embed(ctx, query.Search)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := e.store.Search(ctx, vec, query.TopK, query.Filter())
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Query:     query.Search,
		Results:   results,
		QueryTime: time.Since(startTime).Milliseconds(),
	}
	if query.Podcast != "" && len(results) == 0 {
		if _, known := e.store.SourceHash(query.Podcast); !known {
			resp.Suggestions = SuggestSources(query.Podcast, e.store.Sources())
		}
	}
	e.logger.Debug("search",
		zap.String("query", query.Search),
		zap.String("embedder", string(embedder.Kind())),
		zap.String("podcast", query.Podcast),
		zap.Int("results", len(results)),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}
