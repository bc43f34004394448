// Package embedding turns text into dense vectors with a local encoder or a remote API.
package embedding

import "context"

// Kind identifies an embedding provider variant.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Embedder produces vector embeddings for text. EmbedBatch preserves input order and
// Embed(t) equals EmbedBatch([t])[0].
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the length of the last produced vector, or the configured
	// hint before anything was embedded.
	Dimensions() int
	Kind() Kind
	Close() error
}

// Encoder is a loaded local model producing one vector per text.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// ModelLoader loads an Encoder. Local calls it at most once.
type ModelLoader func() (Encoder, error)
