package vectorstore

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config selects and configures a vector index backend.
type Config struct {
	// Provider is the backend type: "chromem" (default) or "qdrant".
	Provider string

	// Collection is the collection name holding all chunks.
	Collection string

	// VectorSize is the embedding dimension. Must match the embedder.
	VectorSize int

	// Path is the storage directory (chromem only).
	Path string

	// Compress enables gzip compression (chromem only).
	Compress bool

	// Host is the server hostname (qdrant only).
	Host string

	// Port is the gRPC port (qdrant only).
	Port int

	// UseTLS enables TLS for the gRPC connection (qdrant only).
	UseTLS bool

	// MaxRetries is the retry budget for transient failures (qdrant only).
	MaxRetries int

	// RetryBackoff is the initial retry backoff (qdrant only).
	RetryBackoff time.Duration
}

// NewIndex creates the configured vector index backend.
func NewIndex(cfg Config, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
		}, logger)
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			Collection:   cfg.Collection,
			VectorSize:   uint64(cfg.VectorSize),
			UseTLS:       cfg.UseTLS,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
