package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbedder embeds text as keyword counts, giving fully controlled
// distances between sentence groups.
type topicEmbedder struct {
	calls int
}

func (e *topicEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vecs[i] = []float32{
			float32(strings.Count(lower, "cat")),
			float32(strings.Count(lower, "bond")),
			1, // shared component keeps vectors non-zero
		}
	}
	return vecs, nil
}

func newTestSplitter(t *testing.T, cfg SplitterConfig) (*Splitter, *topicEmbedder) {
	t.Helper()
	embedder := &topicEmbedder{}
	splitter, err := NewSplitter(embedder, cfg)
	require.NoError(t, err)
	return splitter, embedder
}

func TestSplitterEmptyText(t *testing.T) {
	splitter, embedder := newTestSplitter(t, SplitterConfig{})

	chunks, err := splitter.Split(context.Background(), "   \n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, embedder.calls, "no embedding calls for empty text")
}

func TestSplitterSingleSentence(t *testing.T) {
	splitter, embedder := newTestSplitter(t, SplitterConfig{})

	chunks, err := splitter.Split(context.Background(), "Only one sentence here.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one sentence here."}, chunks)
	assert.Zero(t, embedder.calls, "a single sentence needs no boundary decision")
}

func TestSplitterTopicShift(t *testing.T) {
	splitter, _ := newTestSplitter(t, SplitterConfig{BreakpointPercentile: 50})

	text := "Cats purr. Cats sleep all day. Bonds yield interest. Bonds mature."
	chunks, err := splitter.Split(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Cats purr. Cats sleep all day.",
		"Bonds yield interest. Bonds mature.",
	}, chunks)
}

func TestSplitterPreservesReadingOrder(t *testing.T) {
	splitter, _ := newTestSplitter(t, SplitterConfig{BreakpointPercentile: 25})

	text := "Cats purr. Bonds mature. Cats nap. Bonds yield. Cats stretch."
	chunks, err := splitter.Split(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Concatenating the chunks must reproduce the sentence stream: no
	// sentence lost, duplicated, or reordered.
	assert.Equal(t, text, strings.Join(chunks, " "))
}

func TestSplitterHighPercentileKeepsOneChunk(t *testing.T) {
	// With few sentences the default 95th percentile threshold equals the
	// maximum distance, and no distance strictly exceeds it.
	splitter, _ := newTestSplitter(t, SplitterConfig{})

	text := "Cats purr. Cats nap. Bonds mature. Bonds yield."
	chunks, err := splitter.Split(context.Background(), text)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "terminal punctuation",
			input: "First. Second! Third?",
			want:  []string{"First.", "Second!", "Third?"},
		},
		{
			name:  "decimals stay together",
			input: "Pi is 3.14 exactly. Trust me.",
			want:  []string{"Pi is 3.14 exactly.", "Trust me."},
		},
		{
			name:  "newlines are boundaries",
			input: "heading without period\nNext sentence.",
			want:  []string{"heading without period", "Next sentence."},
		},
		{
			name:  "trailing text without punctuation",
			input: "Complete sentence. trailing fragment",
			want:  []string{"Complete sentence.", "trailing fragment"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.input))
		})
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{0.1, 0.4, 0.2, 0.3}
	assert.Equal(t, 0.4, percentile(values, 95))
	assert.Equal(t, 0.2, percentile(values, 50))
	assert.Equal(t, 0.1, percentile(values, 1))
	assert.Equal(t, 0.0, percentile(nil, 95))
}
