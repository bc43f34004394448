package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/vector"
)

const metaKeyDimension = "dimension"

// sqliteDB is the durable half of the transcript store.
type sqliteDB struct {
	db   *sql.DB
	path string
}

// openSQLite opens or creates the database at path, checks its integrity, and
// initializes the schema.
func openSQLite(ctx context.Context, path string) (*sqliteDB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed integrity check: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, markCorrupt(fmt.Errorf("integrity check reported: %s", check))
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, schemaErr(fmt.Errorf("failed to initialize schema: %w", err))
	}
	return &sqliteDB{db: db, path: path}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sources (
		source_id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		chunk_id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_id ON records(source_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// dimension returns the persisted dimension, or zero when none was bound.
func (s *sqliteDB) dimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyDimension).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, schemaErr(err)
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, markCorrupt(fmt.Errorf("invalid stored dimension %q", value))
	}
	return n, nil
}

// loadRecords reads every record, checking each embedding against dims.
func (s *sqliteDB) loadRecords(ctx context.Context, dims int) ([]models.IndexedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, source_id, chunk_index, text, embedding FROM records ORDER BY source_id, chunk_index`)
	if err != nil {
		return nil, schemaErr(err)
	}
	defer rows.Close()

	var records []models.IndexedRecord
	for rows.Next() {
		var rec models.IndexedRecord
		var blob []byte
		if err := rows.Scan(&rec.ChunkID, &rec.SourceID, &rec.ChunkIndex, &rec.Text, &blob); err != nil {
			return nil, markCorrupt(err)
		}
		rec.Embedding, err = vector.DecodeFloat32s(blob)
		if err != nil {
			return nil, markCorrupt(fmt.Errorf("record %s: %w", rec.ChunkID, err))
		}
		if len(rec.Embedding) != dims {
			return nil, markCorrupt(fmt.Errorf("record %s has %d dimensions, index has %d", rec.ChunkID, len(rec.Embedding), dims))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// loadSourceHashes returns the content hash of every known source.
func (s *sqliteDB) loadSourceHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, content_hash FROM sources`)
	if err != nil {
		return nil, schemaErr(err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, markCorrupt(err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// writeRecords upserts records of one source in a single transaction. When bindDims is
// positive the dimension is persisted in the same transaction.
func (s *sqliteDB) writeRecords(ctx context.Context, sourceID string, records []models.IndexedRecord, opts insertOptions, bindDims int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if opts.replaceSource {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source_id = ?`, sourceID); err != nil {
			return err
		}
	}
	if bindDims > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
			metaKeyDimension, strconv.Itoa(bindDims),
		); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (chunk_id, source_id, chunk_index, text, embedding)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ChunkID, rec.SourceID, rec.ChunkIndex, rec.Text, vector.EncodeFloat32s(rec.Embedding)); err != nil {
			return err
		}
	}

	if opts.contentHash != "" || opts.replaceSource {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sources (source_id, content_hash, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(source_id) DO UPDATE SET content_hash = excluded.content_hash, updated_at = excluded.updated_at`,
			sourceID, opts.contentHash, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// deleteSource removes every record and the hash of sourceID.
func (s *sqliteDB) deleteSource(ctx context.Context, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	return tx.Commit()
}

// countRecords returns the number of persisted records.
func (s *sqliteDB) countRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

func (s *sqliteDB) close() error {
	return s.db.Close()
}
