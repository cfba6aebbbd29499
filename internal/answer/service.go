// Package answer serves retrieval-augmented question answering: embed the
// question, retrieve context with neighbor expansion, assemble a grounded
// prompt, and generate a response.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Sentinel errors for answering operations.
var (
	// ErrEmptyQuery is returned when the question is empty.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds retrieval and generation parameters.
type Config struct {
	// TopK is the number of primary hits retrieved per question.
	// Default: 3.
	TopK int

	// GenerationTimeout bounds the model call per question.
	// Default: 60s.
	GenerationTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 60 * time.Second
	}
}

// Result is a generated answer plus retrieval accounting.
type Result struct {
	// Answer is the generated response text.
	Answer string `json:"answer"`

	// SourcesCount is the total number of chunks retrieved, expansion
	// included.
	SourcesCount int `json:"sources_count"`

	// ChunksUsed previews the first retrieved chunks (at most two).
	ChunksUsed []string `json:"chunks_used"`
}

// Service answers questions over the ingested corpus.
type Service struct {
	embedder  QueryEmbedder
	index     vectorstore.Index
	generator generation.Generator
	config    Config
	logger    *zap.Logger
}

// NewService creates an answering service.
func NewService(embedder QueryEmbedder, index vectorstore.Index, generator generation.Generator, cfg Config, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:  embedder,
		index:     index,
		generator: generator,
		config:    cfg,
		logger:    logger,
	}
}

// Search retrieves expanded context chunks for a question without
// generating an answer. topK <= 0 falls back to the configured default.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]vectorstore.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := s.index.SearchWithExpansion(ctx, vector, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return chunks, nil
}

// Answer retrieves context for the question and generates a grounded
// response. topK <= 0 falls back to the configured default. With no
// retrievable context the model is still consulted, and the prompt
// instructs it to say the information is unavailable.
func (s *Service) Answer(ctx context.Context, query string, topK int) (*Result, error) {
	chunks, err := s.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(query, chunks)

	genCtx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	defer cancel()

	response, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	preview := make([]string, 0, 2)
	for _, chunk := range chunks {
		if len(preview) == 2 {
			break
		}
		preview = append(preview, chunk.Text)
	}

	s.logger.Info("answered question",
		zap.Int("sources", len(chunks)),
		zap.Int("answer_length", len(response)),
	)

	return &Result{
		Answer:       response,
		SourcesCount: len(chunks),
		ChunksUsed:   preview,
	}, nil
}

// BuildPrompt assembles the grounded generation prompt. Each retrieved
// chunk becomes a numbered document block so the model can only draw on
// supplied context.
func BuildPrompt(query string, chunks []vectorstore.RetrievedChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d]\n%s", i+1, chunk.Text)
	}
	contextBlock := b.String()
	if contextBlock == "" {
		contextBlock = "(no documents found)"
	}

	return fmt.Sprintf(`You are a helpful assistant answering questions about technical documentation.

Answer the question using ONLY the information in the context below.
If the answer involves a procedure, present it as numbered steps.
If the context does not contain the information needed, say so explicitly instead of guessing.

Context:
%s

Question: %s

Answer:`, contextBlock, query)
}
