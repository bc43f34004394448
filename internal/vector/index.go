// Package vector provides an in-memory vector index with filtered cosine search.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Add inserts vectors, replacing any existing vector with the same ID.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k hits by descending score. When allow is non-nil only IDs
	// it accepts are considered, before truncation to k.
	Search(ctx context.Context, query []float32, k int, allow func(id string) bool) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit (ID is the chunk ID).
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
