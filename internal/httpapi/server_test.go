package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/registry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type textExtractor struct{}

func (textExtractor) ExtractText(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

type wholeTextSplitter struct{}

func (wholeTextSplitter) Split(_ context.Context, text string) ([]string, error) {
	return []string{text}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

func (stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type memIndex struct {
	chunks map[string][]vectorstore.Chunk
}

func (m *memIndex) Add(_ context.Context, chunks []vectorstore.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.DocHash] = append(m.chunks[c.DocHash], c)
	}
	return nil
}

func (m *memIndex) Search(context.Context, []float32, int, vectorstore.Filter) ([]vectorstore.RetrievedChunk, error) {
	return nil, nil
}

func (m *memIndex) SearchWithExpansion(_ context.Context, _ []float32, topK int, _ vectorstore.Filter) ([]vectorstore.RetrievedChunk, error) {
	var out []vectorstore.RetrievedChunk
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if len(out) == topK {
				return out, nil
			}
			out = append(out, vectorstore.RetrievedChunk{ID: c.ID, Text: c.Text, Index: c.Index, DocHash: c.DocHash})
		}
	}
	return out, nil
}

func (m *memIndex) DeleteByDocHash(_ context.Context, hash string) (bool, error) {
	delete(m.chunks, hash)
	return true, nil
}

func (m *memIndex) Close() error { return nil }

type memRegistry struct {
	docs map[string]registry.Document
}

func (m *memRegistry) Insert(_ context.Context, doc registry.Document) (string, error) {
	if _, ok := m.docs[doc.FileHash]; ok {
		return "", registry.ErrDuplicateKey
	}
	doc.ID = "doc-" + doc.FileHash[:8]
	m.docs[doc.FileHash] = doc
	return doc.ID, nil
}

func (m *memRegistry) FindByHash(_ context.Context, hash string) (*registry.Document, error) {
	doc, ok := m.docs[hash]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return &doc, nil
}

func (m *memRegistry) List(context.Context, int) ([]registry.Document, error) {
	var out []registry.Document
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memRegistry) DeleteByHash(_ context.Context, hash string) (bool, error) {
	_, ok := m.docs[hash]
	delete(m.docs, hash)
	return ok, nil
}

func (m *memRegistry) Close() error { return nil }

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _ string) (string, error) {
	return "generated answer", nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	index := &memIndex{chunks: make(map[string][]vectorstore.Chunk)}
	reg := &memRegistry{docs: make(map[string]registry.Document)}

	ingestSvc := ingest.NewService(textExtractor{}, wholeTextSplitter{}, stubEmbedder{}, index, reg, zap.NewNop())
	answerSvc := answer.NewService(stubEmbedder{}, index, echoGenerator{}, answer.Config{}, zap.NewNop())

	server, err := NewServer(ingestSvc, answerSvc, zap.NewNop(), cfg)
	require.NoError(t, err)
	return server
}

func uploadRequest(t *testing.T, content, systemName string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "guide.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	if systemName != "" {
		require.NoError(t, writer.WriteField("system_name", systemName))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doRequest(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, Config{})
	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestIngestEndpoint(t *testing.T) {
	server := newTestServer(t, Config{})

	t.Run("missing file field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := doRequest(server, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("successful upload", func(t *testing.T) {
		rec := doRequest(server, uploadRequest(t, "The reset procedure has three steps.", "erp"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var result ingest.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.NotEmpty(t, result.DocumentID)
		assert.NotEmpty(t, result.FileHash)
		assert.Equal(t, 1, result.ChunkCount)
	})

	t.Run("duplicate content conflicts", func(t *testing.T) {
		rec := doRequest(server, uploadRequest(t, "The reset procedure has three steps.", "erp"))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDocumentLifecycle(t *testing.T) {
	server := newTestServer(t, Config{})

	rec := doRequest(server, uploadRequest(t, "Lifecycle test content.", "crm"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	t.Run("list contains document", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), result.FileHash)
	})

	t.Run("get by hash", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+result.FileHash, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "crm")
	})

	t.Run("get unknown hash", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/documents/deadbeef", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+result.FileHash, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+result.FileHash, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete unknown hash", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/deadbeef", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestQueryEndpoints(t *testing.T) {
	server := newTestServer(t, Config{})
	rec := doRequest(server, uploadRequest(t, "Searchable content lives here.", "erp"))
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("query answers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{"query":"where does content live?"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := doRequest(server, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var result answer.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "generated answer", result.Answer)
		assert.Equal(t, 1, result.SourcesCount)
	})

	t.Run("empty query rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":""}`))
		req.Header.Set("Content-Type", "application/json")
		rec := doRequest(server, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query honors caller top_k", func(t *testing.T) {
		for _, content := range []string{"Second searchable page.", "Third searchable page."} {
			rec := doRequest(server, uploadRequest(t, content, "erp"))
			require.Equal(t, http.StatusCreated, rec.Code)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{"query":"pages?","top_k":1}`))
		req.Header.Set("Content-Type", "application/json")
		rec := doRequest(server, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var result answer.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 1, result.SourcesCount, "top_k must cap retrieval")

		req = httptest.NewRequest(http.MethodPost, "/api/v1/query",
			strings.NewReader(`{"query":"pages?"}`))
		req.Header.Set("Content-Type", "application/json")
		rec = doRequest(server, req)
		require.Equal(t, http.StatusOK, rec.Code)

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 3, result.SourcesCount, "omitted top_k uses the default")
	})

	t.Run("search returns chunks without generation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
			strings.NewReader(`{"query":"content","top_k":5}`))
		req.Header.Set("Content-Type", "application/json")
		rec := doRequest(server, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Searchable content lives here.")
	})
}

func TestBearerAuth(t *testing.T) {
	server := newTestServer(t, Config{AuthToken: "sekrit"})

	t.Run("health stays open", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := doRequest(server, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set("Authorization", "Bearer sekrit")
		rec := doRequest(server, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, Config{})
	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
