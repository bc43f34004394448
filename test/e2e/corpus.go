// Package e2e provides end-to-end tests over a directory of transcripts in every supported format.
package e2e

import (
	"fmt"
	"strings"
)

// Episode is one transcript of the corpus.
type Episode struct {
	SourceID string
	Ext      string
	Text     string
}

// FileName returns the transcript file name, which maps back to SourceID.
func (e Episode) FileName() string {
	return e.SourceID + e.Ext
}

var topics = []string{
	"vector databases and similarity search",
	"gardening tomatoes compost and soil health",
	"distributed tracing spans and latency",
	"sourdough starters hydration and baking",
	"rate limiting retries and exponential backoff",
	"marathon training tempo runs and recovery",
	"transformer attention heads and embeddings",
	"beekeeping hive inspections and honey harvest",
	"podcast editing microphones and room noise",
	"chess openings endgames and tactics",
	"urban cycling lanes and traffic design",
	"coffee roasting profiles and extraction",
}

// Formats are the transcript extensions the corpus cycles through.
var Formats = []string{".txt", ".md", ".srt", ".vtt", ".docx"}

// BuildCorpus returns n episodes of wordsPerEpisode words each. Every word is unique
// within the corpus so each chunk text is distinct.
func BuildCorpus(n, wordsPerEpisode int) []Episode {
	episodes := make([]Episode, n)
	for i := range episodes {
		topic := strings.Fields(topics[i%len(topics)])
		words := make([]string, wordsPerEpisode)
		for w := range words {
			words[w] = fmt.Sprintf("%s%dw%d", topic[w%len(topic)], i, w)
		}
		episodes[i] = Episode{
			SourceID: fmt.Sprintf("episode-%02d", i),
			Ext:      Formats[i%len(Formats)],
			Text:     strings.Join(words, " "),
		}
	}
	return episodes
}
