package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kikoe/internal/models"
)

type countingEncoder struct {
	*HashEncoder
	calls int
}

func (c *countingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEncoder.Encode(ctx, text)
}

func TestLocal_EmbedBatchMatchesEmbed(t *testing.T) {
	e := NewLocal(func() (Encoder, error) { return NewHashEncoder(32), nil }, 32)
	ctx := context.Background()
	texts := []string{"first chunk", "second chunk", "third chunk"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(batch))
	}
	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		if len(single) != len(batch[i]) {
			t.Fatalf("text %d: dims differ", i)
		}
		for j := range single {
			if single[j] != batch[i][j] {
				t.Fatalf("text %d: EmbedBatch differs from Embed at %d", i, j)
			}
		}
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if e.Kind() != KindLocal {
		t.Errorf("Kind() = %s", e.Kind())
	}
}

func TestLocal_LoadsOnce(t *testing.T) {
	loads := 0
	e := NewLocal(func() (Encoder, error) {
		loads++
		return NewHashEncoder(8), nil
	}, 8)
	for i := 0; i < 3; i++ {
		if _, err := e.Embed(context.Background(), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if loads != 1 {
		t.Errorf("loader called %d times, want 1", loads)
	}
}

func TestLocal_LoadFailureIsSticky(t *testing.T) {
	loads := 0
	e := NewLocal(func() (Encoder, error) {
		loads++
		return nil, errors.New("model file missing")
	}, 384)
	for i := 0; i < 2; i++ {
		_, err := e.Embed(context.Background(), "x")
		if !errors.Is(err, models.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, models.ErrModelLoad) {
		t.Errorf("EmbedBatch: expected ErrModelLoad, got %v", err)
	}
	if loads != 1 {
		t.Errorf("loader called %d times, want 1", loads)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close after failed load: %v", err)
	}
}

func TestLocal_Cache(t *testing.T) {
	enc := &countingEncoder{HashEncoder: NewHashEncoder(16)}
	e := NewLocal(func() (Encoder, error) { return enc, nil }, 16, WithCache(10))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.Embed(ctx, "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if enc.calls != 1 {
		t.Errorf("encoder called %d times, want 1 with cache", enc.calls)
	}
}

func TestLocal_CanceledContext(t *testing.T) {
	e := NewLocal(func() (Encoder, error) { return NewHashEncoder(8), nil }, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"a", "b"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHashEncoder_UnitLength(t *testing.T) {
	enc := NewHashEncoder(0)
	if enc.Dimensions() != 384 {
		t.Errorf("default dimensions = %d", enc.Dimensions())
	}
	v, _ := enc.Encode(context.Background(), "hello world")
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Errorf("norm^2 = %v, want 1", sum)
	}
	w, _ := enc.Encode(context.Background(), "hello world")
	for i := range v {
		if v[i] != w[i] {
			t.Fatal("HashEncoder should be deterministic")
		}
	}
}
