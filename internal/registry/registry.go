// Package registry stores document metadata records.
//
// The registry is the system's arbiter of document uniqueness: the
// file_hash column carries a UNIQUE constraint, so when two concurrent
// ingestions race on identical content, exactly one insert succeeds and
// the loser observes ErrDuplicateKey.
package registry

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for registry operations.
var (
	// ErrNotFound is returned when no document matches a lookup.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateKey is returned when an insert violates the file hash
	// uniqueness constraint.
	ErrDuplicateKey = errors.New("document with this file hash already exists")
)

// Document is one ingested source file.
//
// Created once at successful ingestion, never mutated, deleted as a unit
// together with its chunks. At most one Document per FileHash exists at
// any time.
type Document struct {
	// ID is the registry-assigned document id.
	ID string `json:"id"`

	// FileHash is the SHA-256 content address of the cleaned text.
	FileHash string `json:"file_hash"`

	// Filename is the name of the uploaded file.
	Filename string `json:"filename"`

	// SystemName is the provenance tag supplied at upload.
	SystemName string `json:"system_name"`

	// CreatedAt is the ingestion timestamp (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Store is the document metadata registry.
type Store interface {
	// Insert stores doc and returns its assigned id.
	// Returns ErrDuplicateKey if a document with the same FileHash exists.
	Insert(ctx context.Context, doc Document) (string, error)

	// FindByHash returns the document with the given file hash.
	// Returns ErrNotFound if no such document exists.
	FindByHash(ctx context.Context, fileHash string) (*Document, error)

	// List returns up to limit documents, newest first.
	List(ctx context.Context, limit int) ([]Document, error)

	// DeleteByHash removes the document with the given file hash.
	// Returns true if a record was removed.
	DeleteByHash(ctx context.Context, fileHash string) (bool, error)

	// Close releases the underlying storage handle.
	Close() error
}
