// Package storage persists indexed transcript chunks and answers similarity queries over them.
package storage

import (
	"context"

	"github.com/hyperjump/kikoe/internal/models"
)

// Store defines transcript record persistence and similarity search.
type Store interface {
	// Insert durably indexes chunks with their embeddings. On error nothing is written.
	Insert(ctx context.Context, sourceID string, chunks []models.Chunk, embeddings [][]float32, opts ...InsertOption) error
	// Search returns up to topK records most similar to query, restricted by filter when non-nil.
	Search(ctx context.Context, query []float32, topK int, filter *models.Filter) ([]*models.SearchResult, error)
	// DeleteSource removes every record of sourceID and returns how many were removed.
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	// SourceHash returns the content hash recorded for sourceID.
	SourceHash(sourceID string) (string, bool)
	Sources() []string
	Stats(ctx context.Context) (models.StoreStats, error)
	// Dimensions returns the bound embedding dimension, or zero before the first insert.
	Dimensions() int
	Close() error
}

type insertOptions struct {
	contentHash   string
	replaceSource bool
}

// InsertOption configures an Insert call.
type InsertOption func(*insertOptions)

// WithContentHash records hash as the content hash of the inserted source.
func WithContentHash(hash string) InsertOption {
	return func(o *insertOptions) { o.contentHash = hash }
}

// ReplaceSource drops every existing record of the source in the same transaction.
func ReplaceSource() InsertOption {
	return func(o *insertOptions) { o.replaceSource = true }
}
