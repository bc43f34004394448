//go:build !cgo
// +build !cgo

package storage

import (
	"errors"

	"modernc.org/sqlite"
)

const driverName = "sqlite"

// sqliteCode returns the SQLite result code carried by err.
func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}
