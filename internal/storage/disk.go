package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/kikoe/internal/models"
)

// sqliteSuffixes names the database file and the sidecars SQLite keeps beside it in WAL mode.
var sqliteSuffixes = []string{"", "-wal", "-shm"}

// indexDiskUsage returns the bytes used on disk by the database at path and its WAL
// and shared-memory files. Files that do not exist count as zero.
func indexDiskUsage(path string) (int64, error) {
	var total int64
	for _, suffix := range sqliteSuffixes {
		info, err := os.Stat(path + suffix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}

// RemoveIndex deletes the index database in dir together with its WAL and
// shared-memory files, so the next LoadOrCreate starts empty with no bound dimension.
// The store must be closed first. Missing files are not an error.
func RemoveIndex(dir string) error {
	path := filepath.Join(dir, IndexFileName)
	for _, suffix := range sqliteSuffixes {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &models.StoreIOError{Op: "remove index", Path: path + suffix, Cause: err}
		}
	}
	return nil
}
