// Package generation produces natural-language answers from assembled
// prompts via langchaingo-backed language models.
package generation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Sentinel errors for generation operations.
var (
	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrGeneration indicates the model failed to produce a response.
	ErrGeneration = errors.New("generation failed")
)

// Generator produces text from a prompt.
type Generator interface {
	// Generate returns the model's response to prompt.
	// Blocking; honors ctx cancellation and deadlines.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for creating a generator.
type Config struct {
	// Provider is the backend type: "ollama" (default) or "openai".
	Provider string

	// Model is the model name. Default: "mistral" for ollama,
	// "gpt-4o-mini" for openai.
	Model string

	// BaseURL is the server URL. Defaults to the local Ollama socket for
	// the ollama provider; optional for openai-compatible endpoints.
	BaseURL string

	// Token is the API token (openai provider only).
	Token string

	// Temperature controls sampling randomness. Default: 0.7.
	Temperature float64

	// MaxTokens caps the response length. Default: 800.
	MaxTokens int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "gpt-4o-mini"
		default:
			c.Model = "mistral"
		}
	}
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 800
	}
}

// LLMGenerator is a Generator backed by a langchaingo model.
type LLMGenerator struct {
	llm    llms.Model
	config Config
}

// NewGenerator creates a generator for the configured provider.
func NewGenerator(cfg Config) (*LLMGenerator, error) {
	cfg.ApplyDefaults()

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Token != "" {
			opts = append(opts, openai.WithToken(cfg.Token))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: ollama, openai)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s model: %w", cfg.Provider, err)
	}

	return &LLMGenerator{llm: llm, config: cfg}, nil
}

// Generate returns the model's response to prompt, cleaned of any leaked
// template tokens.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		// Double wrap keeps context.DeadlineExceeded inspectable so
		// callers can tell a timeout from a model failure.
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return CleanResponse(response), nil
}

// templateTokens are chat-template markers some models echo back.
var templateTokens = []string{"<|system|>", "<|user|>", "<|assistant|>"}

// blankRunPattern matches runs of blank lines.
var blankRunPattern = regexp.MustCompile(`\n\s*\n`)

// spaceRunPattern matches runs of spaces.
var spaceRunPattern = regexp.MustCompile(` +`)

// CleanResponse strips template tokens and squeezes whitespace in a
// generated response.
func CleanResponse(text string) string {
	for _, token := range templateTokens {
		text = strings.ReplaceAll(text, token, "")
	}
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var _ Generator = (*LLMGenerator)(nil)
