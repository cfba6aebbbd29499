package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// schema creates the documents table. file_hash carries the UNIQUE
// constraint that arbitrates concurrent ingestion of identical content.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	file_hash   TEXT NOT NULL UNIQUE,
	filename    TEXT NOT NULL,
	system_name TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`

// defaultListLimit bounds List when the caller passes no limit.
const defaultListLimit = 100

// SQLiteStore is a Store backed by an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a SQLite-backed registry at the given data
// directory. If dataDir is empty, defaults to ~/.config/ragd/registry.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".config", "ragd", "registry")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "documents.db")

	// WAL mode for concurrent readers during request-parallel serving.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Insert stores doc and returns its assigned id.
func (s *SQLiteStore) Insert(ctx context.Context, doc Document) (string, error) {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_hash, filename, system_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, doc.FileHash, doc.Filename, doc.SystemName, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateKey, doc.FileHash)
		}
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// FindByHash returns the document with the given file hash.
func (s *SQLiteStore) FindByHash(ctx context.Context, fileHash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_hash, filename, system_name, created_at FROM documents WHERE file_hash = ?`,
		fileHash,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileHash)
		}
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

// List returns up to limit documents, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_hash, filename, system_name, created_at FROM documents ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteByHash removes the document with the given file hash.
func (s *SQLiteStore) DeleteByHash(ctx context.Context, fileHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE file_hash = ?`, fileHash)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return affected > 0, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDocument.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var createdAt string
	if err := row.Scan(&doc.ID, &doc.FileHash, &doc.Filename, &doc.SystemName, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	doc.CreatedAt = parsed
	return &doc, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. Matched on the error text to stay independent of driver
// internals.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
