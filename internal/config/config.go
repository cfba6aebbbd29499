// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"time"
)

// Config is the complete ragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Registry    RegistryConfig    `koanf:"registry"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Chunker     ChunkerConfig     `koanf:"chunker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. Default: "127.0.0.1".
	Host string `koanf:"host"`

	// Port is the HTTP listen port. Default: 8080.
	Port int `koanf:"port"`

	// AuthToken protects the API with bearer authentication when set.
	AuthToken Secret `koanf:"auth_token"`

	// MaxUploadSize caps uploaded file size in bytes. Default: 32MB.
	MaxUploadSize int64 `koanf:"max_upload_size"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info".
	Level string `koanf:"level"`

	// Format is the output encoding: "json" or "console".
	// Default: "json".
	Format string `koanf:"format"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (default, embedded) or "qdrant".
	Provider string `koanf:"provider"`

	// Collection is the collection holding all chunks.
	// Default: "ragd_chunks".
	Collection string `koanf:"collection"`

	// Path is the chromem storage directory.
	// Default: "~/.config/ragd/vectorstore".
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted chromem data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig holds Qdrant connection settings (qdrant provider only).
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port. Default: 6334.
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial retry backoff. Default: 1s.
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// RegistryConfig holds document registry settings.
type RegistryConfig struct {
	// Path is the directory for the SQLite database.
	// Default: "~/.config/ragd/registry".
	Path string `koanf:"path"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (default, local ONNX) or "ollama".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	// Default: "BAAI/bge-small-en-v1.5" (fastembed),
	// "nomic-embed-text" (ollama).
	Model string `koanf:"model"`

	// BaseURL is the Ollama server URL (ollama provider only).
	BaseURL string `koanf:"base_url"`

	// CacheDir is the model cache directory (fastembed provider only).
	CacheDir string `koanf:"cache_dir"`

	// Dimension overrides the detected embedding dimension.
	Dimension int `koanf:"dimension"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	// Provider is "ollama" (default) or "openai".
	Provider string `koanf:"provider"`

	// Model is the generation model name.
	Model string `koanf:"model"`

	// BaseURL is the model server URL.
	BaseURL string `koanf:"base_url"`

	// Token is the API token (openai provider only).
	Token Secret `koanf:"token"`

	// Temperature controls sampling randomness. Default: 0.7.
	Temperature float64 `koanf:"temperature"`

	// MaxTokens caps response length. Default: 800.
	MaxTokens int `koanf:"max_tokens"`

	// Timeout bounds one generation call. Default: 60s.
	Timeout Duration `koanf:"timeout"`
}

// RetrievalConfig holds search settings.
type RetrievalConfig struct {
	// TopK is the number of primary hits per query. Default: 3.
	TopK int `koanf:"top_k"`
}

// ChunkerConfig holds semantic splitter settings.
type ChunkerConfig struct {
	// BufferSize is the sentence window radius for grouping. Default: 1.
	BufferSize int `koanf:"buffer_size"`

	// BreakpointPercentile is the distance percentile above which a
	// chunk boundary is placed. Default: 95.
	BreakpointPercentile int `koanf:"breakpoint_percentile"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 32 * 1024 * 1024
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "ragd_chunks"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "~/.config/ragd/vectorstore"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = Duration(time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "ollama"
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.7
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 800
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}

	if cfg.Chunker.BufferSize == 0 {
		cfg.Chunker.BufferSize = 1
	}
	if cfg.Chunker.BreakpointPercentile == 0 {
		cfg.Chunker.BreakpointPercentile = 95
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vectorstore provider: %q", c.VectorStore.Provider)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "ollama":
	default:
		return fmt.Errorf("invalid embeddings provider: %q", c.Embeddings.Provider)
	}
	switch c.Generation.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid generation provider: %q", c.Generation.Provider)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive: %d", c.Retrieval.TopK)
	}
	if c.Chunker.BreakpointPercentile <= 0 || c.Chunker.BreakpointPercentile > 100 {
		return fmt.Errorf("chunker breakpoint_percentile must be in (0, 100]: %d", c.Chunker.BreakpointPercentile)
	}
	return nil
}
