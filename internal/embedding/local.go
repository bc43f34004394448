package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kikoe/internal/models"
	"go.uber.org/zap"
)

// Local embeds text with an in-process encoder. The encoder is loaded on first use; a
// load failure is remembered and returned from every later call.
type Local struct {
	load       ModelLoader
	once       sync.Once
	encoder    Encoder
	loadErr    error
	cache      *EmbeddingCache
	dimensions atomic.Int64
	logger     *zap.Logger
}

// LocalOption configures a Local embedder.
type LocalOption func(*Local)

// WithLocalLogger sets the logger used for model load events.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(e *Local) { e.logger = l }
}

// WithCache enables an LRU cache of the given size keyed by text.
func WithCache(size int) LocalOption {
	return func(e *Local) {
		if size > 0 {
			e.cache = NewEmbeddingCache(size)
		}
	}
}

// NewLocal returns a local embedder that loads its encoder with load. dimensionsHint is
// reported by Dimensions until the first vector is produced.
func NewLocal(load ModelLoader, dimensionsHint int, opts ...LocalOption) *Local {
	e := &Local{load: load, logger: zap.NewNop()}
	e.dimensions.Store(int64(dimensionsHint))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Local) model() (Encoder, error) {
	e.once.Do(func() {
		enc, err := e.load()
		if err != nil {
			e.loadErr = fmt.Errorf("%w: %v", models.ErrModelLoad, err)
			e.logger.Error("local embedding model failed to load", zap.Error(err))
			return
		}
		e.encoder = enc
		e.logger.Info("local embedding model loaded", zap.Int("dimensions", enc.Dimensions()))
	})
	return e.encoder, e.loadErr
}

// Embed returns the embedding for text, using the cache when available.
func (e *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	enc, err := e.model()
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(text); ok {
			return cached, nil
		}
	}
	emb, err := enc.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("local embedding failed: %w", err)
	}
	e.dimensions.Store(int64(len(emb)))
	if e.cache != nil {
		e.cache.Set(text, emb)
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text in order.
func (e *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if _, err := e.model(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the length of the last produced vector.
func (e *Local) Dimensions() int {
	return int(e.dimensions.Load())
}

// Kind returns KindLocal.
func (e *Local) Kind() Kind {
	return KindLocal
}

// Close releases the encoder if it was loaded.
func (e *Local) Close() error {
	if e.encoder != nil {
		return e.encoder.Close()
	}
	return nil
}
