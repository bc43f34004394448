package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/kikoe/pkg/utils"
)

// HashEncoder is a deterministic encoder that needs no model file. It returns a
// fixed-dimension vector derived from the text hash so that the same text always gets
// the same embedding. Used in tests and for offline runs.
type HashEncoder struct {
	dimensions int
}

// NewHashEncoder returns an encoder that produces deterministic embeddings of the given dimensions.
func NewHashEncoder(dimensions int) *HashEncoder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEncoder{dimensions: dimensions}
}

// Encode returns a unit-length embedding based on the text hash.
func (e *HashEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEncoder.
func (e *HashEncoder) Close() error {
	return nil
}
