package embedding

import (
	"errors"
	"testing"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
)

func TestSelector_MemoizesVariants(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider: config.ProviderLocal,
		Local:    config.LocalEmbeddingConfig{Encoder: "hash", Dimensions: 16},
		Remote: config.RemoteEmbeddingConfig{
			BaseURL: "http://127.0.0.1:1",
			APIKey:  "k",
			Model:   "m",
		},
	}
	s := NewSelector(cfg)
	defer s.Close()

	def, err := s.Default()
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind() != KindLocal {
		t.Errorf("default kind = %s, want local", def.Kind())
	}
	again, _ := s.For(true)
	if again != def {
		t.Error("local embedder should be built once")
	}
	remote, err := s.For(false)
	if err != nil {
		t.Fatal(err)
	}
	if remote.Kind() != KindRemote {
		t.Errorf("remote kind = %s", remote.Kind())
	}
	if r2, _ := s.For(false); r2 != remote {
		t.Error("remote embedder should be built once")
	}
}

func TestSelector_RemoteWithoutKey(t *testing.T) {
	t.Setenv("KIKOE_SELECTOR_KEY", "")
	s := NewSelector(config.EmbeddingConfig{
		Provider: config.ProviderRemote,
		Remote:   config.RemoteEmbeddingConfig{BaseURL: "http://x", Model: "m", APIKeyEnv: "KIKOE_SELECTOR_KEY"},
	})
	if _, err := s.Default(); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if s.PrefersLocal() {
		t.Error("remote provider should not prefer local")
	}
}

func TestSelector_UnknownEncoder(t *testing.T) {
	s := NewSelector(config.EmbeddingConfig{
		Provider: config.ProviderLocal,
		Local:    config.LocalEmbeddingConfig{Encoder: "tpu", Dimensions: 8},
	})
	e, err := s.Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(t.Context(), "x"); !errors.Is(err, models.ErrModelLoad) {
		t.Errorf("expected ErrModelLoad, got %v", err)
	}
}

func TestSelector_WithEmbedders(t *testing.T) {
	local := NewLocal(func() (Encoder, error) { return NewHashEncoder(4), nil }, 4)
	s := NewSelector(config.EmbeddingConfig{Provider: config.ProviderLocal}, WithEmbedders(local, nil))
	got, err := s.Default()
	if err != nil {
		t.Fatal(err)
	}
	if got != local {
		t.Error("expected the injected local embedder")
	}
}
