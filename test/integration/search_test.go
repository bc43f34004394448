// Package integration provides tests across the store, embedder, coordinator and engine (requires SQLite).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/indexer"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/transcript"
)

func hashSelector() *embedding.Selector {
	return embedding.NewSelector(config.EmbeddingConfig{
		Provider: config.ProviderLocal,
		Local:    config.LocalEmbeddingConfig{Encoder: "hash", Dimensions: 48},
	})
}

func TestIntegration_IndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "index")
	ctx := context.Background()

	src := transcript.MemorySource{
		"tech-talk":   strings.Repeat("embeddings cosine similarity vectors ", 30),
		"garden-hour": strings.Repeat("tomatoes compost mulch watering ", 30),
	}
	query := &models.SearchQuery{Search: "cosine similarity", TopK: 5}

	store, err := storage.LoadOrCreate(ctx, indexDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sel := hashSelector()
	emb, err := sel.Default()
	if err != nil {
		t.Fatal(err)
	}
	chunker, err := indexer.NewChunker(25, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	report, err := indexer.NewIndexer(store, emb, chunker).IngestAll(ctx, src)
	if err != nil || report.Failed() {
		t.Fatalf("ingest: %v %+v", err, report)
	}
	before, err := search.NewEngine(store, sel).Search(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := storage.LoadOrCreate(ctx, indexDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Dimensions() != 48 {
		t.Errorf("dimension after reload = %d, want 48", reopened.Dimensions())
	}
	if h, ok := reopened.SourceHash("tech-talk"); !ok || h == "" {
		t.Error("content hash should survive reload")
	}
	after, err := search.NewEngine(reopened, sel).Search(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before.Results, after.Results) {
		t.Errorf("results differ after reload:\nbefore %+v\nafter  %+v", before.Results, after.Results)
	}

	// Unchanged transcripts are skipped against the reloaded hashes.
	report, err = indexer.NewIndexer(reopened, emb, chunker).IngestAll(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
}

func TestIntegration_CorruptIndexStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storage.IndexFileName), []byte("definitely not sqlite"), 0600); err != nil {
		t.Fatal(err)
	}
	store, err := storage.LoadOrCreate(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("LoadOrCreate should recover from a corrupt index: %v", err)
	}
	defer store.Close()

	resp, err := search.NewEngine(store, hashSelector()).Search(context.Background(), &models.SearchQuery{Search: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("fresh index returned %d results", len(resp.Results))
	}
	matches, _ := filepath.Glob(filepath.Join(dir, storage.IndexFileName+".corrupt-*"))
	if len(matches) != 1 {
		t.Errorf("expected the corrupt index moved aside, found %v", matches)
	}
}
