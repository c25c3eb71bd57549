package vectorindex

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	qdrantBackend = "qdrant"

	// payload keys reserved by the index
	payloadText    = "text"
	payloadChunkID = "chunk_id"

	defaultMaxMessageSize = 50 * 1024 * 1024
)

// chunkNamespace derives deterministic point ids from chunk ids.
var chunkNamespace = uuid.MustParse("6f1c8a52-3d8e-4c59-9a4e-2b7d0f3e1a90")

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	Host           string
	Port           int
	UseTLS         bool
	Collection     string
	Dimension      int
	MaxMessageSize int
}

// QdrantIndex stores chunks as points in a Qdrant collection using
// Euclidean distance and exact search.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    QdrantConfig
	embed  embeddings.Embedder
	logger *logging.Logger
	count  atomic.Int64
}

// NewQdrantIndex connects to Qdrant over gRPC and creates the collection
// when it does not exist.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, embedder embeddings.Embedder, logger *logging.Logger) (*QdrantIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Collection == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("collection and positive dimension are required")
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("qdrant")
	if !cfg.UseTLS {
		logger.Warn(ctx, "qdrant gRPC using plaintext (TLS disabled)")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg, embed: embedder, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := idx.ensureCollection(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := idx.refreshCount(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// refreshCount reloads the exact point count. Upserts that overwrite an
// existing chunk leave it unchanged.
func (q *QdrantIndex) refreshCount(ctx context.Context) error {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("counting points in %s: %w", q.cfg.Collection, err)
	}
	q.count.Store(int64(n))
	EntriesTotal.WithLabelValues(qdrantBackend).Set(float64(n))
	return nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.cfg.Collection, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.cfg.Dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("creating collection %s: %w", q.cfg.Collection, err)
	}
	q.logger.Info(ctx, "created qdrant collection",
		zap.String("collection", q.cfg.Collection),
		zap.Int("dimension", q.cfg.Dimension),
	)
	return nil
}

// isAlreadyExists covers a concurrent creator winning the race.
func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID maps a chunk id to a stable UUID.
func pointID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

// Add implements Index. One upsert carries the whole batch.
func (q *QdrantIndex) Add(ctx context.Context, chunks []chunker.Chunk) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", q.cfg.Collection),
	)

	if len(chunks) == 0 {
		return nil
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := q.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		OperationErrors.WithLabelValues(qdrantBackend, "add").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(vecs[i]) != q.cfg.Dimension {
			err := fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, c.ID, len(vecs[i]), q.cfg.Dimension)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		payload := toPayload(c.Metadata)
		payload[payloadText] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: c.Text}}
		payload[payloadChunkID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: c.ID}}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload,
		}
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		OperationErrors.WithLabelValues(qdrantBackend, "add").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", q.cfg.Collection, err)
	}

	if err := q.refreshCount(ctx); err != nil {
		// The write succeeded; Len may undercount until the next Add.
		q.logger.Warn(ctx, "failed to refresh qdrant point count", zap.Error(err))
	}
	OperationDuration.WithLabelValues(qdrantBackend, "add").Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search implements Index. Qdrant reports the Euclidean distance as the
// score for Distance_Euclid collections and orders ascending.
func (q *QdrantIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 || q.Len() == 0 {
		return []Hit{}, nil
	}
	start := time.Now()

	vec, err := q.embed.EmbedQuery(ctx, query)
	if err != nil {
		OperationErrors.WithLabelValues(qdrantBackend, "search").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
	})
	if err != nil {
		OperationErrors.WithLabelValues(qdrantBackend, "search").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", q.cfg.Collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		md := fromPayload(p.Payload)
		text, _ := md[payloadText].(string)
		id, _ := md[payloadChunkID].(string)
		delete(md, payloadChunkID)
		hits = append(hits, Hit{ID: id, Text: text, Metadata: hitMetadata(md, text), Distance: p.Score})
	}

	OperationDuration.WithLabelValues(qdrantBackend, "search").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Len implements Index. It is the exact collection count as of startup
// or the last Add.
func (q *QdrantIndex) Len() int {
	return int(q.count.Load())
}

func toPayload(md map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(md)+2)
	for k, v := range md {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			if k == "chunk_index" {
				md[k] = int(val.IntegerValue)
			} else {
				md[k] = val.IntegerValue
			}
		case *qdrant.Value_DoubleValue:
			md[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			md[k] = val.BoolValue
		}
	}
	return md
}
