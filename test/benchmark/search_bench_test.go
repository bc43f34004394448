package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/indexer"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/vector"
)

func transcriptText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		fmt.Fprintf(&b, "word%d ", i%997)
	}
	return b.String()
}

func BenchmarkSplit(b *testing.B) {
	text := transcriptText(20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = indexer.Split(text, 2000, 0.1)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(384)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i) / 1000
		vecs[i][1] = 1
		ids[i] = fmt.Sprintf("ep_chunk_%d", i)
	}
	_ = idx.Add(ctx, ids, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10, nil)
	}
}

func BenchmarkStoreSearchFiltered(b *testing.B) {
	ctx := context.Background()
	store, err := storage.LoadOrCreate(ctx, b.TempDir(), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	enc := embedding.NewHashEncoder(384)
	for s := 0; s < 10; s++ {
		source := fmt.Sprintf("episode-%d", s)
		chunks := make([]models.Chunk, 100)
		embs := make([][]float32, 100)
		for i := range chunks {
			text := fmt.Sprintf("%s chunk %d", source, i)
			chunks[i] = models.Chunk{SourceID: source, Index: i, ID: models.ChunkID(source, i), Text: text}
			embs[i], _ = enc.Encode(ctx, text)
		}
		if err := store.Insert(ctx, source, chunks, embs); err != nil {
			b.Fatal(err)
		}
	}
	query, _ := enc.Encode(ctx, "benchmark query")
	filter := &models.Filter{SourceID: "episode-3"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Search(ctx, query, 10, filter)
	}
}

func BenchmarkHashEncoder_Encode(b *testing.B) {
	e := embedding.NewHashEncoder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Encode(ctx, "benchmark query text for embedding")
	}
}
