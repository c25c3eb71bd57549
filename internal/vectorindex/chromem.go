package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const chromemBackend = "chromem"

// ChromemConfig configures a ChromemIndex.
type ChromemConfig struct {
	// Path enables persistence when non-empty. "~" expands to $HOME.
	Path       string
	Compress   bool
	Collection string
	Dimension  int
}

// ChromemIndex stores chunks in a chromem-go collection. Similarity is
// cosine; Distance is reported as 1 - similarity.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	dim        int
	logger     *logging.Logger

	// chromem inserts documents one at a time; mu makes a batch atomic
	// with respect to Search.
	mu sync.RWMutex
}

// NewChromemIndex opens (or creates) the configured collection.
func NewChromemIndex(cfg ChromemConfig, embedder embeddings.Embedder, logger *logging.Logger) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", path, err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	idx := &ChromemIndex{
		db:         db,
		collection: collection,
		embedder:   embedder,
		dim:        cfg.Dimension,
		logger:     logger.Named("chromem"),
	}
	EntriesTotal.WithLabelValues(chromemBackend).Set(float64(collection.Count()))
	return idx, nil
}

func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Add implements Index.
func (c *ChromemIndex) Add(ctx context.Context, chunks []chunker.Chunk) error {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", c.collection.Name),
	)

	if len(chunks) == 0 {
		return nil
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		OperationErrors.WithLabelValues(chromemBackend, "add").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		if c.dim > 0 && len(vecs[i]) != c.dim {
			err := fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, ch.ID, len(vecs[i]), c.dim)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Metadata:  toStringMetadata(ch.Metadata),
			Embedding: vecs[i],
		}
	}

	c.mu.Lock()
	err = c.collection.AddDocuments(ctx, docs, 1)
	n := c.collection.Count()
	c.mu.Unlock()
	if err != nil {
		OperationErrors.WithLabelValues(chromemBackend, "add").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", c.collection.Name, err)
	}

	EntriesTotal.WithLabelValues(chromemBackend).Set(float64(n))
	OperationDuration.WithLabelValues(chromemBackend, "add").Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search implements Index.
func (c *ChromemIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return []Hit{}, nil
	}
	start := time.Now()

	q, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		OperationErrors.WithLabelValues(chromemBackend, "search").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// chromem requires nResults <= document count
	count := c.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := c.collection.QueryEmbedding(ctx, q, topK, nil, nil)
	if err != nil {
		OperationErrors.WithLabelValues(chromemBackend, "search").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", c.collection.Name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: hitMetadata(fromStringMetadata(r.Metadata), r.Content),
			Distance: 1 - r.Similarity,
		})
	}

	OperationDuration.WithLabelValues(chromemBackend, "search").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	c.logger.Debug(ctx, "searched chromem collection",
		zap.String("collection", c.collection.Name),
		zap.Int("k", topK),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

// Len implements Index.
func (c *ChromemIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count()
}

// toStringMetadata flattens metadata to chromem's string map.
func toStringMetadata(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// fromStringMetadata reverses toStringMetadata. chunk_index is the only
// numeric key the pipeline writes and is restored as an int.
func fromStringMetadata(md map[string]string) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	if raw, ok := md["chunk_index"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			out["chunk_index"] = n
		}
	}
	return out
}
