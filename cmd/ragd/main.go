// Command ragd is the retrieval-augmented document QA daemon.
//
// It ingests PDF and plain-text documents into a vector index, keeps a
// metadata registry of everything ingested, and answers questions over the
// corpus through a REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/httpapi"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/registry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ragd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default ~/.config/ragd/config.yaml)")
	flag.Parse()

	if _, err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	index, err := vectorstore.NewIndex(vectorstore.Config{
		Provider:     cfg.VectorStore.Provider,
		Collection:   cfg.VectorStore.Collection,
		VectorSize:   embedder.Dimension(),
		Path:         cfg.VectorStore.Path,
		Compress:     cfg.VectorStore.Compress,
		Host:         cfg.Qdrant.Host,
		Port:         cfg.Qdrant.Port,
		UseTLS:       cfg.Qdrant.UseTLS,
		MaxRetries:   cfg.Qdrant.MaxRetries,
		RetryBackoff: cfg.Qdrant.RetryBackoff.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	defer func() { _ = index.Close() }()

	reg, err := registry.NewSQLiteStore(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("creating document registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	splitter, err := chunker.NewSplitter(embedder, chunker.SplitterConfig{
		BufferSize:           cfg.Chunker.BufferSize,
		BreakpointPercentile: float64(cfg.Chunker.BreakpointPercentile),
	})
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	generator, err := generation.NewGenerator(generation.Config{
		Provider:    cfg.Generation.Provider,
		Model:       cfg.Generation.Model,
		BaseURL:     cfg.Generation.BaseURL,
		Token:       cfg.Generation.Token.Value(),
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	ingestSvc := ingest.NewService(
		extraction.NewDocumentExtractor(),
		splitter,
		embedder,
		index,
		reg,
		logger.Named("ingest"),
	)

	answerSvc := answer.NewService(embedder, index, generator, answer.Config{
		TopK:              cfg.Retrieval.TopK,
		GenerationTimeout: cfg.Generation.Timeout.Duration(),
	}, logger.Named("answer"))

	server, err := httpapi.NewServer(ingestSvc, answerSvc, logger.Named("http"), httpapi.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		AuthToken:     cfg.Server.AuthToken.Value(),
		MaxUploadSize: cfg.Server.MaxUploadSize,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("ragd started",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("generation", cfg.Generation.Provider),
		zap.Int("embedding_dimension", embedder.Dimension()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
