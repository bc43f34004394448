package embedding

import (
	"fmt"
	"sync"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
	"go.uber.org/zap"
)

// Selector hands out the local and remote embedders, building each on first request and
// reusing it afterwards.
type Selector struct {
	cfg    config.EmbeddingConfig
	logger *zap.Logger

	mu     sync.Mutex
	local  Embedder
	remote Embedder
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSelectorLogger sets the logger passed to the embedders the selector builds.
func WithSelectorLogger(l *zap.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// WithEmbedders installs prebuilt embedders; nil leaves that variant to be built from config.
func WithEmbedders(local, remote Embedder) SelectorOption {
	return func(s *Selector) {
		s.local = local
		s.remote = remote
	}
}

// NewSelector returns a selector for cfg.
func NewSelector(cfg config.EmbeddingConfig, opts ...SelectorOption) *Selector {
	s := &Selector{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrefersLocal reports whether the configured default provider is the local one.
func (s *Selector) PrefersLocal() bool {
	return s.cfg.Provider == config.ProviderLocal
}

// Default returns the embedder named by embedding.provider.
func (s *Selector) Default() (Embedder, error) {
	return s.For(s.PrefersLocal())
}

// For returns the local embedder when useLocal is true and the remote one otherwise.
func (s *Selector) For(useLocal bool) (Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if useLocal {
		if s.local == nil {
			s.local = s.newLocal()
		}
		return s.local, nil
	}
	if s.remote == nil {
		r, err := NewRemote(s.cfg.Remote, WithRemoteLogger(s.logger.Named("remote")))
		if err != nil {
			return nil, err
		}
		s.remote = r
	}
	return s.remote, nil
}

func (s *Selector) newLocal() Embedder {
	lc := s.cfg.Local
	var load ModelLoader
	switch lc.Encoder {
	case "hash":
		load = func() (Encoder, error) { return NewHashEncoder(lc.Dimensions), nil }
	case "onnx", "":
		load = ONNXLoader(lc.ModelPath, lc.Dimensions, lc.MaxTokens)
	default:
		load = func() (Encoder, error) {
			return nil, fmt.Errorf("%w: unknown local encoder %q", models.ErrConfiguration, lc.Encoder)
		}
	}
	return NewLocal(load, lc.Dimensions, WithCache(lc.CacheSize), WithLocalLogger(s.logger.Named("local")))
}

// Close closes every embedder the selector built.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, e := range []Embedder{s.local, s.remote} {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
