package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/vector"
	"go.uber.org/zap"
)

// IndexFileName is the database file created inside the index directory.
const IndexFileName = "index.db"

type recordMeta struct {
	sourceID   string
	chunkIndex int
	text       string
}

// TranscriptStore keeps every record durably in SQLite and mirrors the vectors in an
// in-memory index for search. Writes are serialized; searches run concurrently and
// only see committed writes.
type TranscriptStore struct {
	dir    string
	db     *sqliteDB
	index  *vector.MemoryIndex
	logger *zap.Logger

	mu        sync.RWMutex
	dimension int
	records   map[string]recordMeta
	bySource  map[string]map[string]struct{}
	hashes    map[string]string
}

// LoadOrCreate opens the index persisted in dir, or creates an empty one when none
// exists. A damaged index (failed integrity check, foreign schema, undecodable record,
// or a file SQLite does not recognize) is logged and replaced by a fresh one; the
// damaged file is kept next to it with a ".corrupt-<unix>" suffix. Any other failure,
// including a canceled ctx, leaves the file alone and is returned as a
// *models.StoreIOError.
func LoadOrCreate(ctx context.Context, dir string, logger *zap.Logger) (*TranscriptStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &models.StoreIOError{Op: "create index directory", Path: dir, Cause: err}
	}
	path := filepath.Join(dir, IndexFileName)

	s, err := open(ctx, dir, path, logger)
	if err == nil {
		logger.Info("loaded transcript index",
			zap.String("path", path),
			zap.Int("records", len(s.records)),
			zap.Int("dimension", s.dimension))
		return s, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &models.StoreIOError{Op: "open index", Path: path, Cause: ctxErr}
	}
	if !isCorrupt(err) {
		return nil, &models.StoreIOError{Op: "open index", Path: path, Cause: err}
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Warn("transcript index unreadable, starting with an empty index",
		zap.String("path", path),
		zap.String("moved_to", aside),
		zap.Error(err))
	if err := moveAside(path, aside); err != nil {
		return nil, &models.StoreIOError{Op: "move corrupt index", Path: path, Cause: err}
	}
	s, err = open(ctx, dir, path, logger)
	if err != nil {
		return nil, &models.StoreIOError{Op: "create index", Path: path, Cause: err}
	}
	logger.Info("created transcript index", zap.String("path", path))
	return s, nil
}

func moveAside(path, aside string) error {
	if err := os.Rename(path, aside); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func open(ctx context.Context, dir, path string, logger *zap.Logger) (*TranscriptStore, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := hydrate(ctx, dir, db, logger)
	if err != nil {
		_ = db.close()
		return nil, err
	}
	return s, nil
}

func hydrate(ctx context.Context, dir string, db *sqliteDB, logger *zap.Logger) (*TranscriptStore, error) {
	dims, err := db.dimension(ctx)
	if err != nil {
		return nil, err
	}
	records, err := db.loadRecords(ctx, dims)
	if err != nil {
		return nil, err
	}
	hashes, err := db.loadSourceHashes(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && dims == 0 {
		return nil, markCorrupt(errors.New("records present without a stored dimension"))
	}
	index, err := vector.NewMemoryIndex(dims)
	if err != nil {
		return nil, err
	}
	s := &TranscriptStore{
		dir:       dir,
		db:        db,
		index:     index,
		logger:    logger,
		dimension: dims,
		records:   make(map[string]recordMeta, len(records)),
		bySource:  make(map[string]map[string]struct{}),
		hashes:    hashes,
	}
	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	for i, rec := range records {
		ids[i] = rec.ChunkID
		vecs[i] = rec.Embedding
		s.track(rec)
	}
	if err := index.Add(ctx, ids, vecs); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TranscriptStore) track(rec models.IndexedRecord) {
	if prev, ok := s.records[rec.ChunkID]; ok && prev.sourceID != rec.SourceID {
		delete(s.bySource[prev.sourceID], rec.ChunkID)
	}
	s.records[rec.ChunkID] = recordMeta{sourceID: rec.SourceID, chunkIndex: rec.ChunkIndex, text: rec.Text}
	ids, ok := s.bySource[rec.SourceID]
	if !ok {
		ids = make(map[string]struct{})
		s.bySource[rec.SourceID] = ids
	}
	ids[rec.ChunkID] = struct{}{}
}

func (s *TranscriptStore) untrackSource(sourceID string) []string {
	ids := make([]string, 0, len(s.bySource[sourceID]))
	for id := range s.bySource[sourceID] {
		ids = append(ids, id)
		delete(s.records, id)
	}
	delete(s.bySource, sourceID)
	return ids
}

// Insert durably indexes chunks of sourceID with their embeddings. Existing records with
// the same chunk id are overwritten. The first insert into an empty store binds the
// embedding dimension; later inserts with another length fail with a
// *models.DimensionMismatchError and change nothing.
func (s *TranscriptStore) Insert(ctx context.Context, sourceID string, chunks []models.Chunk, embeddings [][]float32, opts ...InsertOption) error {
	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks with %d embeddings", models.ErrInvalidInput, len(chunks), len(embeddings))
	}
	records := make([]models.IndexedRecord, len(chunks))
	for i, ch := range chunks {
		if ch.SourceID != sourceID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q", models.ErrInvalidInput, ch.ID, ch.SourceID, sourceID)
		}
		records[i] = models.IndexedRecord{
			ChunkID:    ch.ID,
			SourceID:   sourceID,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			Embedding:  embeddings[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dimension
	bind := 0
	if dims == 0 && len(embeddings) > 0 {
		dims = len(embeddings[0])
		bind = dims
	}
	for _, emb := range embeddings {
		if len(emb) != dims || dims == 0 {
			return &models.DimensionMismatchError{Expected: dims, Got: len(emb)}
		}
	}

	if err := s.db.writeRecords(ctx, sourceID, records, o, bind); err != nil {
		return &models.StoreIOError{Op: "insert", Path: s.db.path, Cause: err}
	}

	if o.replaceSource {
		stale := s.untrackSource(sourceID)
		if err := s.index.Remove(ctx, stale); err != nil {
			return err
		}
	}
	if bind > 0 {
		s.dimension = bind
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ChunkID
		s.track(rec)
	}
	if err := s.index.Add(ctx, ids, embeddings); err != nil {
		return err
	}
	if o.contentHash != "" || o.replaceSource {
		s.hashes[sourceID] = o.contentHash
	}
	s.logger.Debug("indexed records",
		zap.String("source_id", sourceID),
		zap.Int("records", len(records)),
		zap.Bool("replaced", o.replaceSource))
	return nil
}

// Search returns the topK records most similar to query by cosine similarity, in
// descending score order. The filter is applied before truncation. Once a dimension
// is bound, a query of another length fails with a *models.DimensionMismatchError
// even when every record has since been deleted; otherwise an empty store returns
// no results.
func (s *TranscriptStore) Search(ctx context.Context, query []float32, topK int, filter *models.Filter) ([]*models.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidInput, topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension > 0 && len(query) != s.dimension {
		return nil, &models.DimensionMismatchError{Expected: s.dimension, Got: len(query)}
	}
	if len(s.records) == 0 {
		return []*models.SearchResult{}, nil
	}
	var allow func(string) bool
	if filter != nil {
		allow = func(id string) bool { return filter.Matches(s.records[id].sourceID) }
	}
	hits, err := s.index.Search(ctx, query, topK, allow)
	if err != nil {
		return nil, err
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		meta := s.records[h.ID]
		results = append(results, &models.SearchResult{
			SourceID: meta.sourceID,
			ChunkID:  h.ID,
			Text:     meta.text,
			Score:    h.Score,
		})
	}
	return results, nil
}

// DeleteSource removes every record of sourceID. The bound dimension is kept.
func (s *TranscriptStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.deleteSource(ctx, sourceID); err != nil {
		return 0, &models.StoreIOError{Op: "delete source", Path: s.db.path, Cause: err}
	}
	removed := s.untrackSource(sourceID)
	delete(s.hashes, sourceID)
	if err := s.index.Remove(ctx, removed); err != nil {
		return 0, err
	}
	s.logger.Debug("deleted source", zap.String("source_id", sourceID), zap.Int("records", len(removed)))
	return len(removed), nil
}

// SourceHash returns the content hash recorded for sourceID.
func (s *TranscriptStore) SourceHash(sourceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[sourceID]
	return h, ok
}

// Sources returns the ids of every source with at least one record, sorted.
func (s *TranscriptStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.bySource))
	for id, chunks := range s.bySource {
		if len(chunks) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Stats returns record and source counts, the dimension, and the size of the index on disk.
func (s *TranscriptStore) Stats(ctx context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.db.countRecords(ctx)
	if err != nil {
		return models.StoreStats{}, &models.StoreIOError{Op: "count records", Path: s.db.path, Cause: err}
	}
	disk, err := indexDiskUsage(s.db.path)
	if err != nil {
		s.logger.Debug("disk usage unavailable", zap.Error(err))
	}
	sources := 0
	for _, chunks := range s.bySource {
		if len(chunks) > 0 {
			sources++
		}
	}
	return models.StoreStats{
		Records:   int(n),
		Sources:   sources,
		Dimension: s.dimension,
		DiskBytes: disk,
	}, nil
}

// Dimensions returns the bound embedding dimension, or zero before the first insert.
func (s *TranscriptStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Dir returns the index directory.
func (s *TranscriptStore) Dir() string {
	return s.dir
}

// Close closes the database.
func (s *TranscriptStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.index.Close()
	return s.db.close()
}

var _ Store = (*TranscriptStore)(nil)
