package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// searcher is the minimal surface expansion needs from a backend.
type searcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error)
}

// searchWithExpansion runs the primary search and then fetches the left and
// right positional neighbor of every primary hit. Output ordering is fixed:
// all primaries first in score order, then neighbors in the order they were
// discovered. A chunk id never appears twice, so the result is always a
// superset of the primary hits.
//
// Neighbor lookups are point lookups (topK=1, exact filter on doc_hash and
// chunk_index). A failed or empty neighbor lookup is not an error for the
// overall search; missing neighbors are simply absent.
func searchWithExpansion(ctx context.Context, s searcher, logger *zap.Logger, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	primaries, err := s.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(primaries)*3)
	for _, hit := range primaries {
		seen[hit.ID] = struct{}{}
	}

	results := make([]RetrievedChunk, 0, len(primaries)*3)
	results = append(results, primaries...)

	for _, hit := range primaries {
		if hit.DocHash == "" || hit.Index < 0 {
			continue
		}
		for _, neighborIndex := range []int{hit.Index - 1, hit.Index + 1} {
			if neighborIndex < 0 {
				continue
			}
			neighbor, err := fetchNeighbor(ctx, s, vector, hit.DocHash, neighborIndex)
			if err != nil {
				logger.Warn("neighbor lookup failed",
					zap.String("doc_hash", hit.DocHash),
					zap.Int("chunk_index", neighborIndex),
					zap.Error(err),
				)
				continue
			}
			if neighbor == nil {
				continue
			}
			if _, dup := seen[neighbor.ID]; dup {
				continue
			}
			seen[neighbor.ID] = struct{}{}
			results = append(results, *neighbor)
		}
	}

	return results, nil
}

// fetchNeighbor looks up the single chunk at (docHash, index). The filter
// pins the result to exactly one stored chunk, so the query vector only
// provides the score. Returns nil without error when no such chunk exists.
func fetchNeighbor(ctx context.Context, s searcher, vector []float32, docHash string, index int) (*RetrievedChunk, error) {
	hits, err := s.Search(ctx, vector, 1, Filter{
		FieldDocHash:    docHash,
		FieldChunkIndex: index,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching chunk %s[%d]: %w", docHash, index, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return &hits[0], nil
}
