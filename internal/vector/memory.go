package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kikoe/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	norms      []float64
	pos        map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index. A dimension of zero leaves the
// index unbound until the first Add.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
		norms:      make([]float64, 0),
		pos:        make(map[string]int),
	}, nil
}

// Add upserts vectors with the given IDs. Every vector must have the index dimension;
// on mismatch nothing is added.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", models.ErrInvalidInput, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dims := m.dimensions
	if dims == 0 {
		dims = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dims || dims == 0 {
			return &models.DimensionMismatchError{Expected: dims, Got: len(v)}
		}
	}
	m.dimensions = dims
	for i, id := range ids {
		vec := make([]float32, dims)
		copy(vec, vectors[i])
		if p, ok := m.pos[id]; ok {
			m.vectors[p] = vec
			m.norms[p] = L2Norm(vec)
			continue
		}
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
		m.norms = append(m.norms, L2Norm(vec))
	}
	return nil
}

// Search returns the top-k vectors by cosine similarity. Ties are ordered by ID.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, allow func(id string) bool) ([]*VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidInput, k)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ids) == 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != m.dimensions {
		return nil, &models.DimensionMismatchError{Expected: m.dimensions, Got: len(query)}
	}
	qnorm := L2Norm(query)
	results := make([]*VectorResult, 0, len(m.ids))
	for i, vec := range m.vectors {
		if allow != nil && !allow(m.ids[i]) {
			continue
		}
		score := 0.0
		if qnorm > 0 && m.norms[i] > 0 {
			score = InnerProduct(query, vec) / (qnorm * m.norms[i])
		}
		results = append(results, &VectorResult{ID: m.ids[i], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newIDs := make([]string, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	newNorms := make([]float64, 0, len(m.norms))
	pos := make(map[string]int, len(m.ids))
	for i, id := range m.ids {
		if removeSet[id] {
			continue
		}
		pos[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, m.vectors[i])
		newNorms = append(newNorms, m.norms[i])
	}
	m.ids = newIDs
	m.vectors = newVectors
	m.norms = newNorms
	m.pos = pos
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the bound dimension, or zero when nothing was added yet.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
