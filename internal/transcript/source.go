// Package transcript lists and loads transcripts to ingest.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kikoe/internal/extract"
	"github.com/hyperjump/kikoe/internal/fileid"
	"github.com/hyperjump/kikoe/internal/models"
	"go.uber.org/zap"
)

// Source delivers transcripts. List returns entries with SourceID and Path set; Load
// returns the text of one entry.
type Source interface {
	List(ctx context.Context) ([]models.Transcript, error)
	Load(ctx context.Context, t models.Transcript) (string, error)
}

// DirSource reads transcript files from a directory.
type DirSource struct {
	dir        string
	extensions []string
	recursive  bool
	extractor  *extract.Extractor
	logger     *zap.Logger
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithLogger sets the logger used for skipped files.
func WithLogger(l *zap.Logger) DirOption {
	return func(s *DirSource) { s.logger = l }
}

// WithRecursive controls whether subdirectories are read; defaults to true.
func WithRecursive(recursive bool) DirOption {
	return func(s *DirSource) { s.recursive = recursive }
}

// NewDirSource returns a source for files under dir whose extension is in extensions
// (case-insensitive, with or without the leading dot). An empty list accepts every file.
func NewDirSource(dir string, extensions []string, opts ...DirOption) *DirSource {
	s := &DirSource{
		dir:        dir,
		extensions: extensions,
		recursive:  true,
		extractor:  extract.NewExtractor(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory the source reads.
func (s *DirSource) Dir() string {
	return s.dir
}

// Accepts reports whether path has one of the configured extensions.
func (s *DirSource) Accepts(path string) bool {
	return ExtensionAllowed(filepath.Ext(path), s.extensions)
}

// List walks the directory and returns one entry per source id, sorted by path. When two
// files share a source id the first in path order wins and the other is logged.
func (s *DirSource) List(ctx context.Context) ([]models.Transcript, error) {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat transcript directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!s.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.Accepts(path) {
			return nil
		}
		// Resolve symlinks so only regular files are read
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk transcript directory: %w", err)
	}
	sort.Strings(paths)

	seen := make(map[string]string, len(paths))
	out := make([]models.Transcript, 0, len(paths))
	for _, p := range paths {
		id := fileid.SourceID(p)
		if first, dup := seen[id]; dup {
			s.logger.Warn("skipping transcript with duplicate source id",
				zap.String("source_id", id), zap.String("path", p), zap.String("kept", first))
			continue
		}
		seen[id] = p
		out = append(out, models.Transcript{SourceID: id, Path: p})
	}
	return out, nil
}

// Load extracts the text of t.Path.
func (s *DirSource) Load(ctx context.Context, t models.Transcript) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := s.extractor.Extract(t.Path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", t.Path, err)
	}
	return text, nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
// An empty allowed list accepts everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// MemorySource serves transcripts held in memory, keyed by source id.
type MemorySource map[string]string

// List returns every source id in sorted order.
func (m MemorySource) List(ctx context.Context) ([]models.Transcript, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Transcript, len(ids))
	for i, id := range ids {
		out[i] = models.Transcript{SourceID: id}
	}
	return out, nil
}

// Load returns the text stored for t.SourceID.
func (m MemorySource) Load(ctx context.Context, t models.Transcript) (string, error) {
	text, ok := m[t.SourceID]
	if !ok {
		return "", fmt.Errorf("%w: unknown transcript %q", models.ErrInvalidInput, t.SourceID)
	}
	return text, nil
}
