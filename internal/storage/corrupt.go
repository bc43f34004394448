package storage

import (
	"errors"
	"fmt"
	"strings"
)

// SQLite primary result codes.
const (
	sqliteError   = 1
	sqliteCorrupt = 11
	sqliteNotADB  = 26
)

// errCorrupt marks a load failure caused by the content of the index file.
var errCorrupt = errors.New("index file damaged")

func markCorrupt(err error) error {
	if err == nil || errors.Is(err, errCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %w", errCorrupt, err)
}

// schemaErr marks err as damage when SQLite rejected a statement against the
// expected tables, which only happens when the file holds some other schema.
func schemaErr(err error) error {
	if code, ok := sqliteCode(err); ok && code&0xff == sqliteError {
		return markCorrupt(err)
	}
	return err
}

// isCorrupt reports whether err means the index file is damaged, as opposed to a
// canceled context, a locked database or another transient failure.
func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errCorrupt) {
		return true
	}
	if code, ok := sqliteCode(err); ok {
		switch code & 0xff {
		case sqliteCorrupt, sqliteNotADB:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}
