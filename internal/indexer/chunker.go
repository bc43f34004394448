// Package indexer splits transcripts into chunks and drives them through embedding into the store.
package indexer

import (
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// Split breaks text into overlapping word windows of windowSize words.
// Consecutive windows share floor(windowSize*overlapFraction) words. Text with
// no words yields no windows; text of at most windowSize words yields one.
func Split(text string, windowSize int, overlapFraction float64) ([]string, error) {
	stride, err := strideFor(windowSize, overlapFraction)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) <= windowSize {
		return []string{strings.Join(words, " ")}, nil
	}
	windows := make([]string, 0, (len(words)-windowSize)/stride+2)
	for start := 0; ; start += stride {
		end := start + windowSize
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
	}
	return windows, nil
}

func strideFor(windowSize int, overlapFraction float64) (int, error) {
	if windowSize <= 0 {
		return 0, fmt.Errorf("%w: window size must be positive, got %d", models.ErrConfiguration, windowSize)
	}
	if math.IsNaN(overlapFraction) || overlapFraction < 0 || overlapFraction >= 1 {
		return 0, fmt.Errorf("%w: overlap fraction must be in [0, 1), got %v", models.ErrConfiguration, overlapFraction)
	}
	overlap := int(math.Floor(float64(windowSize) * overlapFraction))
	stride := windowSize - overlap
	if stride <= 0 {
		return 0, fmt.Errorf("%w: window %d with overlap %d leaves no stride", models.ErrConfiguration, windowSize, overlap)
	}
	return stride, nil
}

// Chunker splits transcripts into chunks with deterministic ids.
type Chunker struct {
	windowSize      int
	overlapFraction float64
}

// NewChunker validates the window parameters and returns a chunker.
func NewChunker(windowSize int, overlapFraction float64) (*Chunker, error) {
	if _, err := strideFor(windowSize, overlapFraction); err != nil {
		return nil, err
	}
	return &Chunker{
		windowSize:      windowSize,
		overlapFraction: overlapFraction,
	}, nil
}

// Overlap returns the number of words shared by consecutive chunks.
func (c *Chunker) Overlap() int {
	return int(math.Floor(float64(c.windowSize) * c.overlapFraction))
}

// Chunk splits text into chunks of sourceID, numbered from zero.
func (c *Chunker) Chunk(sourceID, text string) ([]models.Chunk, error) {
	windows, err := Split(text, c.windowSize, c.overlapFraction)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}
	chunks := make([]models.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = models.Chunk{
			SourceID: sourceID,
			Index:    i,
			ID:       models.ChunkID(sourceID, i),
			Text:     w,
		}
	}
	return chunks, nil
}
