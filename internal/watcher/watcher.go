// Package watcher keeps the transcript index in step with a directory using fsnotify.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/kikoe/internal/indexer"
	"github.com/hyperjump/kikoe/internal/transcript"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives transcript file changes.
type Sink interface {
	IngestFile(ctx context.Context, path string) (int, error)
	RemoveFile(ctx context.Context, path string) (int, error)
}

// Watcher re-ingests transcript files under one directory when they change and removes
// their records when they are deleted or renamed away.
type Watcher struct {
	root        string
	extensions  []string
	recursive   bool
	sink        Sink
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	ctx         context.Context
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithExtensions restricts the watched files to the given extensions (empty = all).
func WithExtensions(exts []string) WatcherOption {
	return func(w *Watcher) { w.extensions = exts }
}

// WithRecursive controls whether subdirectories are watched; defaults to true.
func WithRecursive(recursive bool) WatcherOption {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the transcript directory root feeding sink.
func NewWatcher(root string, sink Sink, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		recursive:   true,
		sink:        sink,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start creates the root if it is missing and watches it until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.logger.Debug("watcher starting",
		zap.String("root", w.root), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	if err := w.addTree(fw, w.root); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !inDir(w.root, filepath.Clean(path)) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if w.recursive {
				w.handleNewDirectory(path)
			}
			return
		}
		if w.accepts(path) {
			w.debounceIngest(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.accepts(path) {
			w.remove(path)
		}
	}
}

// handleNewDirectory watches a directory created or moved under the root and ingests
// the transcripts already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	if err := w.addTree(fw, dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.syncDirectory(dir)
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) accepts(path string) bool {
	return transcript.ExtensionAllowed(filepath.Ext(path), w.extensions)
}

func (w *Watcher) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *Watcher) ingest(path string) {
	n, err := w.sink.IngestFile(w.context(), path)
	switch {
	case errors.Is(err, indexer.ErrUnchanged):
		w.logger.Debug("transcript unchanged", zap.String("path", path))
	case err != nil:
		w.logger.Warn("transcript ingestion failed", zap.String("path", path), zap.Error(err))
	default:
		w.logger.Info("transcript ingested", zap.String("path", path), zap.Int("chunks", n))
	}
}

func (w *Watcher) remove(path string) {
	n, err := w.sink.RemoveFile(w.context(), path)
	if err != nil {
		w.logger.Warn("transcript removal failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("transcript removed", zap.String("path", path), zap.Int("records", n))
}

func (w *Watcher) syncDirectory(dir string) {
	w.logger.Debug("watcher syncing directory", zap.String("dir", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (!w.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accepts(path) {
			w.ingest(path)
		}
		return nil
	})
}

// SyncExistingFiles ingests every matching file already under the root. Unchanged
// transcripts are skipped by the sink.
func (w *Watcher) SyncExistingFiles() {
	w.syncDirectory(w.root)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
