// Package vectorindex stores chunk embeddings and answers nearest-neighbour
// queries over them.
//
// Three backends share one contract: an exact in-process L2 index (the
// default), a chromem-go collection, and a Qdrant collection reached over
// gRPC. Every backend returns hits in ascending distance order and never
// more than topK of them.
package vectorindex

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/vectorindex")

var (
	// ErrDimensionMismatch is returned when an embedding has the wrong width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed wraps embedder errors.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrConnectionFailed is returned when a remote backend is unreachable.
	ErrConnectionFailed = errors.New("vector index connection failed")
)

// Hit is one search result. Metadata always carries the chunk text under
// "text".
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance float32
}

// Index is the vector index contract shared by all backends.
type Index interface {
	// Add embeds and stores chunks. A batch is visible to readers all at
	// once or not at all.
	Add(ctx context.Context, chunks []chunker.Chunk) error

	// Search returns at most topK hits nearest to query, ascending by
	// distance. An empty index yields no hits and no error.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)

	// Len reports the number of stored entries.
	Len() int
}

// hitMetadata copies md and adds the passage text.
func hitMetadata(md map[string]any, text string) map[string]any {
	out := make(map[string]any, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out["text"] = text
	return out
}
