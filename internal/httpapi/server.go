// Package httpapi exposes the ragd REST API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

// Config holds HTTP server configuration.
type Config struct {
	// Host is the bind address.
	Host string

	// Port is the listen port.
	Port int

	// AuthToken enables bearer authentication on /api/v1 when non-empty.
	AuthToken string

	// MaxUploadSize caps request body size in bytes.
	MaxUploadSize int64
}

// Server provides the ragd HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	ingestSvc *ingest.Service
	answerSvc *answer.Service
	logger    *zap.Logger
	config    Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(ingestSvc *ingest.Service, answerSvc *answer.Service, logger *zap.Logger, cfg Config) (*Server, error) {
	if ingestSvc == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if answerSvc == nil {
		return nil, fmt.Errorf("answer service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 32 * 1024 * 1024
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadSize)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			observeRequest(c.Request().Method, c.Path(), c.Response().Status, duration)
			return err
		}
	})

	s := &Server{
		echo:      e,
		ingestSvc: ingestSvc,
		answerSvc: answerSvc,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.config.AuthToken != "" {
		token := s.config.AuthToken
		v1.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		}))
	}

	v1.POST("/documents", s.handleIngest)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:hash", s.handleGetDocument)
	v1.DELETE("/documents/:hash", s.handleDeleteDocument)
	v1.POST("/query", s.handleQuery)
	v1.POST("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest accepts a multipart upload ("file" field, optional
// "system_name" field) and runs the ingestion pipeline.
func (s *Server) handleIngest(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if int64(len(data)) > s.config.MaxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded file too large")
	}

	result, err := s.ingestSvc.Ingest(c.Request().Context(), ingest.Request{
		Data:       data,
		Filename:   fileHeader.Filename,
		SystemName: c.FormValue("system_name"),
	})
	if err != nil {
		return s.mapError(err)
	}

	documentsIngested.Inc()
	chunksIndexed.Add(float64(result.ChunkCount))
	return c.JSON(http.StatusCreated, result)
}

// ListDocumentsResponse is the response body for GET /api/v1/documents.
type ListDocumentsResponse struct {
	Documents any `json:"documents"`
}

func (s *Server) handleListDocuments(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	docs, err := s.ingestSvc.List(c.Request().Context(), limit)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ListDocumentsResponse{Documents: docs})
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.ingestSvc.Get(c.Request().Context(), c.Param("hash"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	if err := s.ingestSvc.Delete(c.Request().Context(), c.Param("hash")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// QueryRequest is the request body for POST /api/v1/query and /search.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.answerSvc.Answer(c.Request().Context(), req.Query, req.TopK)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Chunks any `json:"chunks"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	chunks, err := s.answerSvc.Search(c.Request().Context(), req.Query, req.TopK)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Chunks: chunks})
}

// mapError translates service errors into HTTP status codes.
// Duplicate content is a business outcome, reported as 409.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrDuplicateDocument):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ingest.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, extraction.ErrExtraction):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, answer.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrInconsistentState):
		s.logger.Error("inconsistent state", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
