package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/transcript"
)

// scriptedEmbedder wraps a hash encoder, records batch sizes, and fails on texts
// containing "poison".
type scriptedEmbedder struct {
	kind    embedding.Kind
	enc     *embedding.HashEncoder
	mu      sync.Mutex
	batches []int
}

func newScriptedEmbedder(kind embedding.Kind, dims int) *scriptedEmbedder {
	return &scriptedEmbedder{kind: kind, enc: embedding.NewHashEncoder(dims)}
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, &models.ProviderError{Provider: "test", StatusCode: 400, Message: "rejected"}
	}
	return e.enc.Encode(ctx, text)
}

func (e *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *scriptedEmbedder) Dimensions() int      { return e.enc.Dimensions() }
func (e *scriptedEmbedder) Kind() embedding.Kind { return e.kind }
func (e *scriptedEmbedder) Close() error         { return nil }

func newTestStore(t *testing.T) *storage.TranscriptStore {
	t.Helper()
	s, err := storage.LoadOrCreate(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestIndexer(t *testing.T, store storage.Store, emb embedding.Embedder, window int, opts ...IndexerOption) *Indexer {
	t.Helper()
	c, err := NewChunker(window, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return NewIndexer(store, emb, c, opts...)
}

func TestIngestAll_IsolatesFailures(t *testing.T) {
	store := newTestStore(t)
	emb := newScriptedEmbedder(embedding.KindRemote, 16)
	idx := newTestIndexer(t, store, emb, 4, WithWorkers(3))

	src := transcript.MemorySource{
		"ep1": words(10),
		"ep2": "this transcript contains poison somewhere",
		"ep3": words(3),
	}
	report, err := idx.IngestAll(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if report.RunID == "" {
		t.Error("run id should be set")
	}
	if report.Documents != 2 {
		t.Errorf("documents processed = %d, want 2", report.Documents)
	}
	if report.Chunks != 5 {
		t.Errorf("chunks produced = %d, want 5 (4 + 1)", report.Chunks)
	}
	if len(report.Failures) != 1 || report.Failures[0].SourceID != "ep2" {
		t.Fatalf("unexpected failures %+v", report.Failures)
	}
	if !report.Failed() {
		t.Error("Failed() should be true")
	}
	sources := store.Sources()
	if len(sources) != 2 || sources[0] != "ep1" || sources[1] != "ep3" {
		t.Errorf("stored sources = %v", sources)
	}
}

func TestIngestAll_ListFailure(t *testing.T) {
	idx := newTestIndexer(t, newTestStore(t), newScriptedEmbedder(embedding.KindLocal, 8), 4)
	src := transcript.NewDirSource(filepath.Join(t.TempDir(), "missing"), nil)
	if _, err := idx.IngestAll(context.Background(), src); err == nil {
		t.Error("expected listing error")
	}
}

func TestIngestAll_SkipsUnchanged(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindLocal, 8), 4)
	src := transcript.MemorySource{"ep1": words(10), "ep2": words(6)}
	ctx := context.Background()

	if _, err := idx.IngestAll(ctx, src); err != nil {
		t.Fatal(err)
	}
	src["ep2"] = words(6) + "  \n " // whitespace-only change
	report, err := idx.IngestAll(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 2 || report.Documents != 0 {
		t.Errorf("expected both skipped, got %+v", report)
	}

	forced := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindLocal, 8), 4, WithForce(true))
	report, _ = forced.IngestAll(ctx, src)
	if report.Documents != 2 || report.Skipped != 0 {
		t.Errorf("force should re-ingest, got %+v", report)
	}
}

func TestIngestDocument_ReplacesShrunkTranscript(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindLocal, 8), 4)
	ctx := context.Background()

	n, err := idx.IngestDocument(ctx, models.Transcript{SourceID: "ep", Text: words(10)})
	if err != nil || n != 4 {
		t.Fatalf("first ingest: %d, %v", n, err)
	}
	n, err = idx.IngestDocument(ctx, models.Transcript{SourceID: "ep", Text: words(5)})
	if err != nil || n != 2 {
		t.Fatalf("second ingest: %d, %v", n, err)
	}
	stats, _ := store.Stats(ctx)
	if stats.Records != 2 {
		t.Errorf("stale chunks left behind, records = %d", stats.Records)
	}

	n, err = idx.IngestDocument(ctx, models.Transcript{SourceID: "ep", Text: "   "})
	if err != nil || n != 0 {
		t.Fatalf("empty ingest: %d, %v", n, err)
	}
	if got := store.Sources(); len(got) != 0 {
		t.Errorf("emptied transcript should be removed, sources = %v", got)
	}
}

func TestIngestDocument_UnchangedSentinel(t *testing.T) {
	idx := newTestIndexer(t, newTestStore(t), newScriptedEmbedder(embedding.KindLocal, 8), 4)
	ctx := context.Background()
	doc := models.Transcript{SourceID: "ep", Text: words(8)}
	if _, err := idx.IngestDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.IngestDocument(ctx, doc); !errors.Is(err, ErrUnchanged) {
		t.Errorf("expected ErrUnchanged, got %v", err)
	}
}

func TestIngestDocument_LocalBatches(t *testing.T) {
	emb := newScriptedEmbedder(embedding.KindLocal, 8)
	idx := newTestIndexer(t, newTestStore(t), emb, 2, WithLocalBatchSize(32))
	// window 2, overlap 1 -> stride 1 -> 69 chunks for 70 words
	n, err := idx.IngestDocument(context.Background(), models.Transcript{SourceID: "ep", Text: words(70)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 69 {
		t.Fatalf("chunks = %d, want 69", n)
	}
	want := []int{32, 32, 5}
	if len(emb.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", emb.batches, want)
	}
	for i := range want {
		if emb.batches[i] != want[i] {
			t.Errorf("batch %d = %d, want %d", i, emb.batches[i], want[i])
		}
	}
}

func TestIngestDocument_RemoteSingleCall(t *testing.T) {
	emb := newScriptedEmbedder(embedding.KindRemote, 8)
	idx := newTestIndexer(t, newTestStore(t), emb, 2)
	if _, err := idx.IngestDocument(context.Background(), models.Transcript{SourceID: "ep", Text: words(70)}); err != nil {
		t.Fatal(err)
	}
	if len(emb.batches) != 1 || emb.batches[0] != 69 {
		t.Errorf("remote embedder should get one batch of 69, got %v", emb.batches)
	}
}

func TestIngestDocument_DimensionMismatchReported(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindLocal, 8), 4)
	if _, err := first.IngestDocument(ctx, models.Transcript{SourceID: "a", Text: words(5)}); err != nil {
		t.Fatal(err)
	}
	second := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindRemote, 12), 4)
	_, err := second.IngestDocument(ctx, models.Transcript{SourceID: "b", Text: words(5)})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIngestFileAndRemoveFile(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndexer(t, store, newScriptedEmbedder(embedding.KindLocal, 8), 4)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "episode-7.txt")
	if err := os.WriteFile(path, []byte(words(6)), 0600); err != nil {
		t.Fatal(err)
	}
	n, err := idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("chunks = %d, want 2", n)
	}
	if got := store.Sources(); len(got) != 1 || got[0] != "episode-7" {
		t.Errorf("sources = %v", got)
	}
	removed, err := idx.RemoveFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 || len(store.Sources()) != 0 {
		t.Errorf("removed %d, sources left %v", removed, store.Sources())
	}
	if _, err := idx.IngestFile(ctx, filepath.Dir(path)); err == nil {
		t.Error("expected error for directory")
	}
}

func TestIngestAll_CanceledContext(t *testing.T) {
	idx := newTestIndexer(t, newTestStore(t), newScriptedEmbedder(embedding.KindLocal, 8), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := idx.IngestAll(ctx, transcript.MemorySource{"a": "x y z"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if report == nil || len(report.Failures) != 1 {
		t.Errorf("expected the document recorded as failed, got %+v", report)
	}
}
