// Package models defines core data structures for transcripts, chunks, queries, and search results.
package models

import "fmt"

// ChunkID returns the identifier of the chunk at index within sourceID.
func ChunkID(sourceID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", sourceID, index)
}

// Transcript is one document delivered by a transcript source.
type Transcript struct {
	SourceID string `json:"source_id"`
	Text     string `json:"-"`
	Path     string `json:"path,omitempty"`
}

// Chunk is a contiguous word window of a transcript.
type Chunk struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"chunk_index"`
	ID       string `json:"chunk_id"`
	Text     string `json:"text"`
}

// IndexedRecord is the persisted unit of the transcript store.
type IndexedRecord struct {
	ChunkID    string    `json:"chunk_id" db:"chunk_id"`
	SourceID   string    `json:"source_id" db:"source_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Text       string    `json:"text" db:"text"`
	Embedding  []float32 `json:"-" db:"embedding"`
}

// DocumentFailure records why a single transcript could not be ingested.
type DocumentFailure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	RunID     string            `json:"run_id"`
	Documents int               `json:"documents_processed"`
	Chunks    int               `json:"chunks_produced"`
	Skipped   int               `json:"documents_skipped"`
	Failures  []DocumentFailure `json:"failures,omitempty"`
}

// Failed reports whether any document failed.
func (r *IngestReport) Failed() bool {
	return len(r.Failures) > 0
}

// StoreStats describes the contents of a transcript store.
type StoreStats struct {
	Records   int   `json:"records"`
	Sources   int   `json:"sources"`
	Dimension int   `json:"dimension"`
	DiskBytes int64 `json:"disk_bytes"`
}
