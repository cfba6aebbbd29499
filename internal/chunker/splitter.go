// Package chunker splits cleaned document text into ordered, semantically
// coherent chunks.
//
// Boundaries are chosen by embedding-distance signals between neighboring
// sentence groups rather than fixed character counts: each sentence is
// embedded together with a small buffer of surrounding sentences, and a
// chunk boundary is placed wherever the cosine distance between consecutive
// group embeddings exceeds a percentile threshold. The output order always
// equals reading order; it becomes the chunk index.
package chunker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Embedder generates embeddings for the boundary decisions.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// SplitterConfig holds configuration for the semantic splitter.
type SplitterConfig struct {
	// BufferSize is the number of sentences on each side combined with a
	// sentence before embedding it. Default: 1.
	BufferSize int

	// BreakpointPercentile is the percentile of inter-group distances above
	// which a chunk boundary is placed. Default: 95.
	BreakpointPercentile float64
}

// ApplyDefaults sets default values for unset fields.
func (c *SplitterConfig) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = 1
	}
	if c.BreakpointPercentile == 0 {
		c.BreakpointPercentile = 95
	}
}

// Validate validates the configuration.
func (c SplitterConfig) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size cannot be negative: %d", c.BufferSize)
	}
	if c.BreakpointPercentile < 0 || c.BreakpointPercentile > 100 {
		return fmt.Errorf("breakpoint percentile must be in [0,100]: %v", c.BreakpointPercentile)
	}
	return nil
}

// Splitter splits text into semantic chunks using an embedder.
type Splitter struct {
	embedder Embedder
	config   SplitterConfig
}

// NewSplitter creates a Splitter backed by the given embedder.
func NewSplitter(embedder Embedder, config SplitterConfig) (*Splitter, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Splitter{embedder: embedder, config: config}, nil
}

// Split returns the chunks of text in reading order.
//
// Empty or whitespace-only text yields zero chunks and no error. A text
// with a single sentence yields exactly one chunk.
func (s *Splitter) Split(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	switch len(sentences) {
	case 0:
		return nil, nil
	case 1:
		return []string{sentences[0]}, nil
	}

	groups := make([]string, len(sentences))
	for i := range sentences {
		lo := i - s.config.BufferSize
		if lo < 0 {
			lo = 0
		}
		hi := i + s.config.BufferSize + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		groups[i] = strings.Join(sentences[lo:hi], " ")
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("embedding sentence groups: %w", err)
	}
	if len(embeddings) != len(groups) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d groups", len(embeddings), len(groups))
	}

	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosineSimilarity(embeddings[i], embeddings[i+1])
	}
	threshold := percentile(distances, s.config.BreakpointPercentile)

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	chunks = append(chunks, strings.Join(sentences[start:], " "))
	return chunks, nil
}

// splitSentences segments text into sentences, keeping terminal punctuation.
// Newlines also act as sentence boundaries since cleaned text keeps one
// line per source line.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Boundary only when followed by whitespace or end of text,
			// so "3.14" and "v1.2" stay together.
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 for zero-length or mismatched vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// percentile returns the p-th percentile of values (nearest-rank method).
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
