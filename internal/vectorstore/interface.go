// Package vectorstore owns the append/search/delete contract against the
// embedding index and implements neighbor-expansion retrieval.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrEmptyChunks indicates empty or nil chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrStorage indicates an index read or write failure.
	ErrStorage = errors.New("vector index storage failure")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector index")
)

// Metadata payload field names stored alongside every chunk.
const (
	FieldContent    = "content"
	FieldChunkID    = "chunk_id"
	FieldChunkIndex = "chunk_index"
	FieldCreatedAt  = "created_at"
	FieldSystemName = "system_name"
	FieldFilename   = "filename"
	FieldDocHash    = "doc_hash"
)

// Chunk is one unit of retrievable text belonging to exactly one document.
//
// ID is the deterministic chunk id derived from (DocHash, Index), so
// re-adding the same chunk overwrites rather than duplicates. Index is the
// zero-based position within the document; adjacency (index ± 1) is what
// expansion search walks.
type Chunk struct {
	ID         string
	Text       string
	Embedding  []float32
	Index      int
	DocHash    string
	Filename   string
	SystemName string
	CreatedAt  time.Time
}

// RetrievedChunk is a chunk plus its similarity score. Produced only by
// search, never persisted.
//
// Index is -1 when the stored payload lacks position metadata; such
// chunks are returned as primary hits but skipped for expansion.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	Index      int     `json:"chunk_index"`
	DocHash    string  `json:"doc_hash"`
	Filename   string  `json:"filename"`
	SystemName string  `json:"system_name"`
}

// Filter is a set of exact-match conditions on chunk metadata fields.
// Values may be strings or ints (chunk_index).
type Filter map[string]any

// Index is the interface for vector index operations.
//
// Implementations:
//   - ChromemIndex: embedded chromem-go (default, no external service)
//   - QdrantIndex: external Qdrant over gRPC
type Index interface {
	// Add upserts chunks into the index, keyed by chunk id.
	Add(ctx context.Context, chunks []Chunk) error

	// Search returns the topK chunks nearest to vector under cosine
	// similarity, descending by score, constrained to filter when
	// non-nil.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error)

	// SearchWithExpansion runs Search and augments each primary hit with
	// its positional neighbors (chunk index ± 1 within the same
	// document). Primaries come first in score order, followed by
	// neighbors in discovery order; no chunk id appears twice.
	SearchWithExpansion(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error)

	// DeleteByDocHash removes every chunk whose doc_hash equals fileHash.
	// Returns true only after verifying zero matching chunks remain;
	// vacuously true when none existed.
	DeleteByDocHash(ctx context.Context, fileHash string) (bool, error)

	// Close releases the index connection and resources.
	Close() error
}
