package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const flatBackend = "flat"

type flatEntry struct {
	id   string
	text string
	md   map[string]any
}

// FlatIndex is an exact L2 index held in memory. Position i of vectors
// belongs to position i of entries; both grow under the same write lock.
type FlatIndex struct {
	embedder embeddings.Embedder
	dim      int

	mu      sync.RWMutex
	vectors [][]float32
	entries []flatEntry
}

// NewFlatIndex creates an empty index of the given dimension.
func NewFlatIndex(embedder embeddings.Embedder, dim int) (*FlatIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &FlatIndex{embedder: embedder, dim: dim}, nil
}

// Add implements Index.
func (f *FlatIndex) Add(ctx context.Context, chunks []chunker.Chunk) error {
	ctx, span := tracer.Start(ctx, "FlatIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := f.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		OperationErrors.WithLabelValues(flatBackend, "add").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(chunks) {
		err := fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vecs), len(chunks))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	for i, v := range vecs {
		if len(v) != f.dim {
			OperationErrors.WithLabelValues(flatBackend, "add").Inc()
			err := fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, chunks[i].ID, len(v), f.dim)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	entries := make([]flatEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = flatEntry{id: c.ID, text: c.Text, md: hitMetadata(c.Metadata, c.Text)}
	}

	f.mu.Lock()
	f.vectors = append(f.vectors, vecs...)
	f.entries = append(f.entries, entries...)
	n := len(f.entries)
	f.mu.Unlock()

	EntriesTotal.WithLabelValues(flatBackend).Set(float64(n))
	OperationDuration.WithLabelValues(flatBackend, "add").Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search implements Index.
func (f *FlatIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "FlatIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 || f.Len() == 0 {
		return []Hit{}, nil
	}
	start := time.Now()

	q, err := f.embedder.EmbedQuery(ctx, query)
	if err != nil {
		OperationErrors.WithLabelValues(flatBackend, "search").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(q) != f.dim {
		err := fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(q), f.dim)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	type scored struct {
		pos  int
		dist float32
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ranked := make([]scored, 0, len(f.vectors))
	for i, v := range f.vectors {
		ranked = append(ranked, scored{pos: i, dist: l2(q, v)})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].dist < ranked[b].dist })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		if r.pos < 0 || r.pos >= len(f.entries) {
			continue
		}
		e := f.entries[r.pos]
		hits = append(hits, Hit{ID: e.id, Text: e.text, Metadata: hitMetadata(e.md, e.text), Distance: r.dist})
	}

	OperationDuration.WithLabelValues(flatBackend, "search").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Len implements Index.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// l2 is the Euclidean distance between a and b, which have equal length.
func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
