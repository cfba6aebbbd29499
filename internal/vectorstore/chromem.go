package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/ragd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name holding all chunks.
	// Default: "ragd_chunks"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/ragd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "ragd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex is an Index backed by chromem-go.
//
// chromem-go is an embeddable vector database in pure Go: no external
// service, no CGO, persistence to gob files. All chunks carry precomputed
// embeddings, so the collection's embedding function is never invoked.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemIndex creates a new ChromemIndex with the given configuration.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: creating chromem DB: %v", ErrConnectionFailed, err)
	}

	index := &ChromemIndex{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem index initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return index, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedFunc rejects any attempt by chromem to compute an embedding.
// Every document is stored with a precomputed vector and every query
// supplies one, so this firing means a caller forgot an embedding.
func noEmbedFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function invoked; chunks must carry precomputed embeddings")
}

func (s *ChromemIndex) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, noEmbedFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: getting collection %s: %v", ErrStorage, s.config.Collection, err)
	}
	return collection, nil
}

// Add upserts chunks into the index, keyed by chunk id.
func (s *ChromemIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	collection, err := s.collection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("%w: chunk at index %d has no id", ErrInvalidConfig, i)
		}
		if len(chunk.Embedding) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %s embedding has dimension %d, expected %d",
				ErrInvalidConfig, chunk.ID, len(chunk.Embedding), s.config.VectorSize)
		}
		docs[i] = chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Embedding: chunk.Embedding,
			Metadata:  chunkMetadata(chunk),
		}
	}

	// Concurrency of 1: embeddings are precomputed, nothing to parallelize.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: adding chunks: %v", ErrStorage, err)
	}

	s.logger.Debug("added chunks to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// chunkMetadata flattens chunk fields into chromem's string-only metadata.
func chunkMetadata(chunk Chunk) map[string]string {
	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return map[string]string{
		FieldChunkID:    chunk.ID,
		FieldChunkIndex: strconv.Itoa(chunk.Index),
		FieldDocHash:    chunk.DocHash,
		FieldFilename:   chunk.Filename,
		FieldSystemName: chunk.SystemName,
		FieldCreatedAt:  createdAt.Format(time.RFC3339Nano),
	}
}

// Search returns the topK nearest chunks, optionally filtered.
func (s *ChromemIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidConfig, topK)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query vector has dimension %d, expected %d",
			ErrInvalidConfig, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbedFunc)
	if collection == nil {
		return nil, nil
	}

	// chromem requires nResults <= stored document count.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, topK, chromemWhere(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection: %v", ErrStorage, err)
	}

	retrieved := make([]RetrievedChunk, len(results))
	for i, r := range results {
		retrieved[i] = chromemResult(r)
	}
	return retrieved, nil
}

// SearchWithExpansion augments Search hits with their positional neighbors.
func (s *ChromemIndex) SearchWithExpansion(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	return searchWithExpansion(ctx, s, s.logger, vector, topK, filter)
}

// chromemWhere converts a Filter to chromem's string-valued where clause.
func chromemWhere(filter Filter) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case string:
			where[key] = v
		case int:
			where[key] = strconv.Itoa(v)
		default:
			where[key] = fmt.Sprintf("%v", v)
		}
	}
	return where
}

// chromemResult converts a chromem result into a RetrievedChunk.
func chromemResult(r chromem.Result) RetrievedChunk {
	chunk := RetrievedChunk{
		ID:    r.ID,
		Text:  r.Content,
		Score: r.Similarity,
		Index: -1,
	}
	if r.Metadata != nil {
		if raw, ok := r.Metadata[FieldChunkIndex]; ok {
			if idx, err := strconv.Atoi(raw); err == nil {
				chunk.Index = idx
			}
		}
		chunk.DocHash = r.Metadata[FieldDocHash]
		chunk.Filename = r.Metadata[FieldFilename]
		chunk.SystemName = r.Metadata[FieldSystemName]
	}
	return chunk
}

// DeleteByDocHash removes every chunk of the given document and verifies
// none remain. Vacuously true when the collection holds no such chunks.
func (s *ChromemIndex) DeleteByDocHash(ctx context.Context, fileHash string) (bool, error) {
	if fileHash == "" {
		return false, fmt.Errorf("%w: file hash required", ErrInvalidConfig)
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbedFunc)
	if collection == nil {
		return true, nil
	}

	where := map[string]string{FieldDocHash: fileHash}
	if err := collection.Delete(ctx, where, nil); err != nil {
		return false, fmt.Errorf("%w: deleting chunks for %s: %v", ErrStorage, fileHash, err)
	}

	remaining, err := s.countByDocHash(ctx, collection, fileHash)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		s.logger.Error("chunks remain after delete",
			zap.String("doc_hash", fileHash),
			zap.Int("remaining", remaining),
		)
		return false, nil
	}

	s.logger.Debug("deleted chunks from chromem", zap.String("doc_hash", fileHash))
	return true, nil
}

// countByDocHash probes for any chunk still carrying the hash. chromem has
// no filtered count, so one filtered query with an arbitrary unit vector
// suffices to detect survivors.
func (s *ChromemIndex) countByDocHash(ctx context.Context, collection *chromem.Collection, fileHash string) (int, error) {
	if collection.Count() == 0 {
		return 0, nil
	}

	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := collection.QueryEmbedding(ctx, probe, 1, map[string]string{FieldDocHash: fileHash}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: verifying deletion for %s: %v", ErrStorage, fileHash, err)
	}
	return len(results), nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemIndex) Close() error {
	s.logger.Info("chromem index closed")
	return nil
}

var _ Index = (*ChromemIndex)(nil)
