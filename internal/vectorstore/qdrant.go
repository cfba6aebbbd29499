package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the collection name holding all chunks.
	// Default: "ragd_chunks"
	Collection string

	// VectorSize is the embedding dimensionality.
	// Must match the embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubling per retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, large enough for batched document embeddings.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "ragd_chunks"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether err should be retried.
// True for network timeouts and temporary unavailability, false for
// invalid arguments, missing collections, and auth failures.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client.
//
// gRPC (port 6334) avoids the HTTP layer's payload limits, which matters
// when upserting the full chunk set of a large document in one call.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantIndex creates a QdrantIndex, verifies connectivity, and ensures
// the chunk collection exists.
func NewQdrantIndex(config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	index := &QdrantIndex{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := index.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return index, nil
}

// ensureCollection creates the chunk collection if it does not exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("%w: checking collection %s: %v", ErrStorage, s.config.Collection, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrStorage, s.config.Collection, err)
	}

	s.logger.Info("created qdrant collection", zap.String("collection", s.config.Collection))
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient gRPC failures.
func (s *QdrantIndex) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}

		s.logger.Warn("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Add upserts chunks into the index, keyed by chunk id.
func (s *QdrantIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("%w: chunk at index %d has no id", ErrInvalidConfig, i)
		}
		if uint64(len(chunk.Embedding)) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %s embedding has dimension %d, expected %d",
				ErrInvalidConfig, chunk.ID, len(chunk.Embedding), s.config.VectorSize)
		}

		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: map[string]*qdrant.Value{
				FieldContent:    {Kind: &qdrant.Value_StringValue{StringValue: chunk.Text}},
				FieldChunkID:    {Kind: &qdrant.Value_StringValue{StringValue: chunk.ID}},
				FieldChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(chunk.Index)}},
				FieldDocHash:    {Kind: &qdrant.Value_StringValue{StringValue: chunk.DocHash}},
				FieldFilename:   {Kind: &qdrant.Value_StringValue{StringValue: chunk.Filename}},
				FieldSystemName: {Kind: &qdrant.Value_StringValue{StringValue: chunk.SystemName}},
				FieldCreatedAt:  {Kind: &qdrant.Value_StringValue{StringValue: createdAt.Format(time.RFC3339Nano)}},
			},
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Debug("upserted chunks to qdrant",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Search returns the topK nearest chunks, optionally filtered.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidConfig, topK)
	}
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query vector has dimension %d, expected %d",
			ErrInvalidConfig, len(vector), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qdrantFilter(filter),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	retrieved := make([]RetrievedChunk, len(points))
	for i, point := range points {
		retrieved[i] = qdrantResult(point)
	}
	return retrieved, nil
}

// SearchWithExpansion augments Search hits with their positional neighbors.
func (s *QdrantIndex) SearchWithExpansion(ctx context.Context, vector []float32, topK int, filter Filter) ([]RetrievedChunk, error) {
	return searchWithExpansion(ctx, s, s.logger, vector, topK, filter)
}

// qdrantFilter converts a Filter into Qdrant must-match conditions.
// Strings match as keywords, ints as integers.
func qdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		var match *qdrant.Match
		switch v := value.(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case int:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		case int64:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		default:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// qdrantResult converts a scored point into a RetrievedChunk.
func qdrantResult(point *qdrant.ScoredPoint) RetrievedChunk {
	chunk := RetrievedChunk{
		Score: point.Score,
		Index: -1,
	}
	for key, value := range point.Payload {
		switch key {
		case FieldContent:
			chunk.Text = value.GetStringValue()
		case FieldChunkID:
			chunk.ID = value.GetStringValue()
		case FieldChunkIndex:
			chunk.Index = int(value.GetIntegerValue())
		case FieldDocHash:
			chunk.DocHash = value.GetStringValue()
		case FieldFilename:
			chunk.Filename = value.GetStringValue()
		case FieldSystemName:
			chunk.SystemName = value.GetStringValue()
		}
	}
	if chunk.ID == "" {
		if uuid := point.Id.GetUuid(); uuid != "" {
			chunk.ID = uuid
		}
	}
	return chunk
}

// DeleteByDocHash removes every chunk of the given document and verifies
// via a filtered count that none remain.
func (s *QdrantIndex) DeleteByDocHash(ctx context.Context, fileHash string) (bool, error) {
	if fileHash == "" {
		return false, fmt.Errorf("%w: file hash required", ErrInvalidConfig)
	}

	filter := qdrantFilter(Filter{FieldDocHash: fileHash})

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: deleting chunks for %s: %v", ErrStorage, fileHash, err)
	}

	var remaining uint64
	err = s.retryOperation(ctx, "count", func() error {
		count, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		remaining = count
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: verifying deletion for %s: %v", ErrStorage, fileHash, err)
	}
	if remaining > 0 {
		s.logger.Error("chunks remain after delete",
			zap.String("doc_hash", fileHash),
			zap.Uint64("remaining", remaining),
		)
		return false, nil
	}

	s.logger.Debug("deleted chunks from qdrant", zap.String("doc_hash", fileHash))
	return true, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ Index = (*QdrantIndex)(nil)
