package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSearcher serves primaries for unfiltered searches and point
// lookups for filtered ones, with optional per-position failures.
type scriptedSearcher struct {
	primaries []RetrievedChunk
	byPos     map[string]RetrievedChunk
	failPos   map[string]error
}

func posKey(docHash string, index int) string {
	return docHash + "#" + string(rune('0'+index))
}

func (s *scriptedSearcher) Search(_ context.Context, _ []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	if filter == nil {
		if topK > len(s.primaries) {
			topK = len(s.primaries)
		}
		return s.primaries[:topK], nil
	}

	docHash, _ := filter[FieldDocHash].(string)
	index, _ := filter[FieldChunkIndex].(int)
	key := posKey(docHash, index)
	if err, ok := s.failPos[key]; ok {
		return nil, err
	}
	if chunk, ok := s.byPos[key]; ok {
		return []RetrievedChunk{chunk}, nil
	}
	return nil, nil
}

func chunkAt(docHash string, index int) RetrievedChunk {
	return RetrievedChunk{
		ID:      docHash + "-" + string(rune('a'+index)),
		Text:    "text",
		Index:   index,
		DocHash: docHash,
	}
}

func TestSearchWithExpansionOrdering(t *testing.T) {
	s := &scriptedSearcher{
		primaries: []RetrievedChunk{chunkAt("d1", 1)},
		byPos: map[string]RetrievedChunk{
			posKey("d1", 0): chunkAt("d1", 0),
			posKey("d1", 1): chunkAt("d1", 1),
			posKey("d1", 2): chunkAt("d1", 2),
		},
	}

	results, err := searchWithExpansion(context.Background(), s, zap.NewNop(), nil, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "d1-b", results[0].ID)
	assert.Equal(t, "d1-a", results[1].ID)
	assert.Equal(t, "d1-c", results[2].ID)
}

func TestSearchWithExpansionMultiplePrimaries(t *testing.T) {
	// Two primaries from different documents; all primaries come before
	// any neighbor.
	s := &scriptedSearcher{
		primaries: []RetrievedChunk{chunkAt("d1", 1), chunkAt("d2", 0)},
		byPos: map[string]RetrievedChunk{
			posKey("d1", 0): chunkAt("d1", 0),
			posKey("d1", 1): chunkAt("d1", 1),
			posKey("d1", 2): chunkAt("d1", 2),
			posKey("d2", 0): chunkAt("d2", 0),
			posKey("d2", 1): chunkAt("d2", 1),
		},
	}

	results, err := searchWithExpansion(context.Background(), s, zap.NewNop(), nil, 2, nil)
	require.NoError(t, err)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"d1-b", "d2-a", "d1-a", "d1-c", "d2-b"}, ids)
}

func TestSearchWithExpansionSkipsUnexpandablePrimaries(t *testing.T) {
	s := &scriptedSearcher{
		primaries: []RetrievedChunk{
			{ID: "no-meta", Index: -1}, // stored without position metadata
		},
	}

	results, err := searchWithExpansion(context.Background(), s, zap.NewNop(), nil, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "no-meta", results[0].ID)
}

func TestSearchWithExpansionToleratesNeighborFailures(t *testing.T) {
	s := &scriptedSearcher{
		primaries: []RetrievedChunk{chunkAt("d1", 1)},
		byPos: map[string]RetrievedChunk{
			posKey("d1", 2): chunkAt("d1", 2),
		},
		failPos: map[string]error{
			posKey("d1", 0): errors.New("backend hiccup"),
		},
	}

	results, err := searchWithExpansion(context.Background(), s, zap.NewNop(), nil, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1-b", results[0].ID)
	assert.Equal(t, "d1-c", results[1].ID)
}

func TestSearchWithExpansionPrimaryErrorPropagates(t *testing.T) {
	s := &failingSearcher{}
	_, err := searchWithExpansion(context.Background(), s, zap.NewNop(), nil, 1, nil)
	assert.Error(t, err)
}

type failingSearcher struct{}

func (f *failingSearcher) Search(context.Context, []float32, int, Filter) ([]RetrievedChunk, error) {
	return nil, errors.New("index down")
}
