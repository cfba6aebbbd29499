package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig holds configuration for the Ollama embedding provider.
type OllamaConfig struct {
	// Model is the embedding model name. Default: nomic-embed-text.
	Model string

	// BaseURL is the Ollama server URL. Default: http://localhost:11434.
	BaseURL string

	// Dimension overrides the detected embedding dimension.
	// Required for models outside the known-model table.
	Dimension int
}

// ollamaModelDimensions maps known Ollama embedding models to their
// output dimensions.
var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// OllamaProvider generates embeddings via a remote Ollama server.
type OllamaProvider struct {
	llm       *ollama.LLM
	modelName string
	dimension int
}

// NewOllamaProvider creates a new Ollama embedding provider.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		known, ok := ollamaModelDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("%w: unknown dimension for model %q, set it explicitly", ErrInvalidConfig, cfg.Model)
		}
		dimension = known
	}

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama client: %w", err)
	}

	return &OllamaProvider{
		llm:       llm,
		modelName: cfg.Model,
		dimension: dimension,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	embeddings, err := p.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(embeddings), len(texts))
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	embeddings, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimension returns the embedding dimension for the current model.
func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op since Ollama is accessed over HTTP.
func (p *OllamaProvider) Close() error {
	return nil
}

var _ Provider = (*OllamaProvider)(nil)
