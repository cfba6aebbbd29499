// Package ingest orchestrates the document ingestion pipeline: extract,
// clean, hash, chunk, embed, index, register. It owns the dedup and
// compensation rules that keep the vector index and the registry agreeing
// on which documents exist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/registry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Sentinel errors for ingestion operations.
var (
	// ErrDuplicateDocument is returned when content identical to an
	// already-ingested document is submitted. A business outcome, not a
	// failure: nothing was stored, the existing document stands.
	ErrDuplicateDocument = errors.New("document with identical content already ingested")

	// ErrNotFound is returned when no document matches the given hash.
	ErrNotFound = errors.New("document not found")

	// ErrInconsistentState is returned when a compensating cleanup could
	// not restore agreement between the vector index and the registry.
	// Operator attention is required.
	ErrInconsistentState = errors.New("vector index and registry are inconsistent")
)

// Embedder generates embeddings for chunk texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter divides cleaned text into retrieval-sized chunks.
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// Request carries one document upload.
type Request struct {
	// Data is the raw uploaded file content.
	Data []byte

	// Filename is the name of the uploaded file.
	Filename string

	// SystemName is the provenance tag for the document.
	SystemName string
}

// Result reports a completed ingestion.
type Result struct {
	// DocumentID is the registry-assigned id. Empty when the document
	// produced no chunks.
	DocumentID string `json:"document_id"`

	// FileHash is the SHA-256 content address of the cleaned text.
	// Empty when the document produced no text.
	FileHash string `json:"file_hash"`

	// ChunkCount is the number of chunks stored.
	ChunkCount int `json:"chunk_count"`
}

// Service runs the ingestion pipeline.
type Service struct {
	extractor extraction.Extractor
	splitter  Splitter
	embedder  Embedder
	index     vectorstore.Index
	registry  registry.Store
	logger    *zap.Logger
}

// NewService creates an ingestion service.
func NewService(
	extractor extraction.Extractor,
	splitter Splitter,
	embedder Embedder,
	index vectorstore.Index,
	reg registry.Store,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		registry:  reg,
		logger:    logger,
	}
}

// Ingest runs the full pipeline for one uploaded document.
//
// Content identity is decided before any expensive work: the cleaned text
// is hashed and checked against the registry, so re-uploading known
// content returns ErrDuplicateDocument without chunking or embedding.
// The registry's uniqueness constraint arbitrates concurrent uploads of
// identical content; the race loser rolls back its vectors and also
// reports ErrDuplicateDocument.
//
// A document whose cleaned text is empty ingests successfully with zero
// effect: no chunks, no registry record.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	text, err := s.extractor.ExtractText(ctx, req.Data)
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", req.Filename, err)
	}

	cleaned := chunker.Clean(text)
	if cleaned == "" {
		s.logger.Info("document produced no text, nothing to ingest",
			zap.String("filename", req.Filename),
		)
		return &Result{}, nil
	}

	fileHash := identity.DocumentHash(cleaned)

	// Early dedup: identical content is rejected before chunking or
	// embedding spends any compute.
	if _, err := s.registry.FindByHash(ctx, fileHash); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, fileHash)
	} else if !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("checking for duplicate: %w", err)
	}

	texts, err := s.splitter.Split(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("splitting document %s: %w", req.Filename, err)
	}
	if len(texts) == 0 {
		s.logger.Info("document produced no chunks, nothing to ingest",
			zap.String("filename", req.Filename),
			zap.String("file_hash", fileHash),
		)
		return &Result{FileHash: fileHash}, nil
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d chunks", len(embeddings), len(texts))
	}

	now := time.Now().UTC()
	chunks := make([]vectorstore.Chunk, len(texts))
	for i, chunkText := range texts {
		chunks[i] = vectorstore.Chunk{
			ID:         identity.ChunkID(fileHash, i),
			Text:       chunkText,
			Embedding:  embeddings[i],
			Index:      i,
			DocHash:    fileHash,
			Filename:   req.Filename,
			SystemName: req.SystemName,
			CreatedAt:  now,
		}
	}

	if err := s.index.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("indexing %d chunks: %w", len(chunks), err)
	}

	docID, err := s.registry.Insert(ctx, registry.Document{
		FileHash:   fileHash,
		Filename:   req.Filename,
		SystemName: req.SystemName,
		CreatedAt:  now,
	})
	if err != nil {
		// The vectors are in but the registry refused the record. Roll
		// the vectors back so the two stores keep agreeing.
		if compErr := s.compensate(ctx, fileHash); compErr != nil {
			return nil, compErr
		}
		if errors.Is(err, registry.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, fileHash)
		}
		return nil, fmt.Errorf("registering document: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", docID),
		zap.String("file_hash", fileHash),
		zap.String("filename", req.Filename),
		zap.String("system_name", req.SystemName),
		zap.Int("chunks", len(chunks)),
	)

	return &Result{
		DocumentID: docID,
		FileHash:   fileHash,
		ChunkCount: len(chunks),
	}, nil
}

// compensate removes the chunks written for fileHash after a failed
// registry insert.
func (s *Service) compensate(ctx context.Context, fileHash string) error {
	ok, err := s.index.DeleteByDocHash(ctx, fileHash)
	if err != nil {
		s.logger.Error("compensating vector delete failed",
			zap.String("file_hash", fileHash),
			zap.Error(err),
		)
		return fmt.Errorf("%w: compensating delete for %s: %v", ErrInconsistentState, fileHash, err)
	}
	if !ok {
		s.logger.Error("compensating vector delete left chunks behind",
			zap.String("file_hash", fileHash),
		)
		return fmt.Errorf("%w: chunks remain for %s after compensating delete", ErrInconsistentState, fileHash)
	}
	return nil
}

// Delete removes a document and all its chunks by file hash.
//
// Vectors go first and their removal is verified before the registry
// record is touched. If chunk removal cannot be verified, the registry
// record survives so the document remains visible and deletable.
func (s *Service) Delete(ctx context.Context, fileHash string) error {
	if _, err := s.registry.FindByHash(ctx, fileHash); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, fileHash)
		}
		return fmt.Errorf("finding document: %w", err)
	}

	ok, err := s.index.DeleteByDocHash(ctx, fileHash)
	if err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", fileHash, err)
	}
	if !ok {
		return fmt.Errorf("%w: chunks remain for %s after delete", ErrInconsistentState, fileHash)
	}

	if _, err := s.registry.DeleteByHash(ctx, fileHash); err != nil {
		return fmt.Errorf("deleting registry record for %s: %w", fileHash, err)
	}

	s.logger.Info("document deleted", zap.String("file_hash", fileHash))
	return nil
}

// Get returns the registry record for a file hash.
func (s *Service) Get(ctx context.Context, fileHash string) (*registry.Document, error) {
	doc, err := s.registry.FindByHash(ctx, fileHash)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileHash)
		}
		return nil, err
	}
	return doc, nil
}

// List returns up to limit ingested documents, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]registry.Document, error) {
	return s.registry.List(ctx, limit)
}
