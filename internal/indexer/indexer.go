package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/extract"
	"github.com/hyperjump/kikoe/internal/fileid"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/transcript"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnchanged is returned by IngestDocument when the transcript matches the indexed content.
var ErrUnchanged = errors.New("transcript unchanged")

// DefaultLocalBatchSize is the number of chunks sent to a local embedder per call.
const DefaultLocalBatchSize = 32

// Indexer drives transcripts through chunking and embedding into the store. Each
// document succeeds or fails on its own.
type Indexer struct {
	store          storage.Store
	embedder       embedding.Embedder
	chunker        *Chunker
	extractor      *extract.Extractor
	workers        int
	localBatchSize int
	force          bool
	logger         *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithWorkers sets how many documents are ingested concurrently.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithLocalBatchSize sets the batch size used with a local embedder.
func WithLocalBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.localBatchSize = n
		}
	}
}

// WithForce re-ingests transcripts even when their content hash is unchanged.
func WithForce(force bool) IndexerOption {
	return func(idx *Indexer) { idx.force = force }
}

// NewIndexer creates an indexer writing to store with embedder.
func NewIndexer(store storage.Store, embedder embedding.Embedder, chunker *Chunker, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:          store,
		embedder:       embedder,
		chunker:        chunker,
		extractor:      extract.NewExtractor(),
		workers:        1,
		localBatchSize: DefaultLocalBatchSize,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestAll ingests every transcript of src. A failure to list src is returned; a
// failure of one document is recorded in the report and the others continue.
func (idx *Indexer) IngestAll(ctx context.Context, src transcript.Source) (*models.IngestReport, error) {
	start := time.Now()
	docs, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	report := &models.IngestReport{RunID: uuid.New().String()}
	idx.logger.Info("ingestion started",
		zap.String("run_id", report.RunID),
		zap.Int("documents", len(docs)),
		zap.String("embedder", string(idx.embedder.Kind())))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(idx.workers)
	for _, doc := range docs {
		g.Go(func() error {
			n, err := idx.ingestFromSource(ctx, src, doc)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrUnchanged):
				report.Skipped++
			case err != nil:
				report.Failures = append(report.Failures, models.DocumentFailure{SourceID: doc.SourceID, Error: err.Error()})
				idx.logger.Warn("transcript ingestion failed",
					zap.String("source_id", doc.SourceID), zap.Error(err))
			default:
				report.Documents++
				report.Chunks += n
			}
			return nil
		})
	}
	_ = g.Wait()

	idx.logger.Info("ingestion finished",
		zap.String("run_id", report.RunID),
		zap.Int("documents_processed", report.Documents),
		zap.Int("chunks_produced", report.Chunks),
		zap.Int("documents_skipped", report.Skipped),
		zap.Int("documents_failed", len(report.Failures)),
		zap.Duration("elapsed", time.Since(start)))
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (idx *Indexer) ingestFromSource(ctx context.Context, src transcript.Source, doc models.Transcript) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	text, err := src.Load(ctx, doc)
	if err != nil {
		return 0, err
	}
	doc.Text = text
	return idx.IngestDocument(ctx, doc)
}

// IngestDocument chunks, embeds, and stores one transcript, returning the number of
// chunks written. It returns ErrUnchanged when the indexed content hash matches.
// Records of an earlier version of the same source are replaced.
func (idx *Indexer) IngestDocument(ctx context.Context, t models.Transcript) (int, error) {
	text := Preprocess(t.Text)
	hash := fileid.ContentHash(text)
	prev, known := idx.store.SourceHash(t.SourceID)
	if known && prev == hash && !idx.force {
		idx.logger.Debug("skipping unchanged transcript", zap.String("source_id", t.SourceID))
		return 0, ErrUnchanged
	}

	chunks, err := idx.chunker.Chunk(t.SourceID, text)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		if known {
			if _, err := idx.store.DeleteSource(ctx, t.SourceID); err != nil {
				return 0, err
			}
		}
		idx.logger.Debug("empty transcript", zap.String("source_id", t.SourceID))
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if err := idx.store.Insert(ctx, t.SourceID, chunks, embeddings,
		storage.WithContentHash(hash), storage.ReplaceSource()); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	idx.logger.Debug("transcript indexed",
		zap.String("source_id", t.SourceID), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// embed sends local embedders fixed-size batches and remote embedders one request.
func (idx *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if idx.embedder.Kind() != embedding.KindLocal {
		embs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(embs) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", models.ErrEmbeddingProvider, len(texts), len(embs))
		}
		return embs, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += idx.localBatchSize {
		end := start + idx.localBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embs, err := idx.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(embs) != end-start {
			return nil, fmt.Errorf("local embedder returned %d embeddings for %d texts", len(embs), end-start)
		}
		out = append(out, embs...)
	}
	return out, nil
}

// IngestFile reads the transcript at path and ingests it under its file source id.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	return idx.IngestDocument(ctx, models.Transcript{
		SourceID: fileid.SourceID(absPath),
		Path:     absPath,
		Text:     text,
	})
}

// RemoveFile deletes every record of the source the file at path belonged to.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	id := fileid.SourceID(path)
	n, err := idx.store.DeleteSource(ctx, id)
	if err != nil {
		return 0, err
	}
	idx.logger.Debug("transcript removed", zap.String("source_id", id), zap.Int("records", n))
	return n, nil
}
