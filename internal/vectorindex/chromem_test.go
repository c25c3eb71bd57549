package vectorindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := vectorindex.NewChromemIndex(vectorindex.ChromemConfig{
		Collection: "test_chunks",
		Dimension:  testDim,
	}, embeddings.NewHashEmbedder(testDim), logging.Nop())
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "energy", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Add(ctx, chunksFor("job1", corpus...)))
	assert.Equal(t, len(corpus), idx.Len())

	hits, err = idx.Search(ctx, "force mass acceleration law", 10)
	require.NoError(t, err)
	require.Len(t, hits, len(corpus))
	assert.Equal(t, "job1_chunk_2", hits[0].ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
	assert.Equal(t, 2, hits[0].Metadata["chunk_index"])
	assert.Equal(t, corpus[2], hits[0].Metadata["text"])
	assert.Equal(t, "u1", hits[0].Metadata["userId"])
}

func TestChromemIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chromem")
	cfg := vectorindex.ChromemConfig{Path: path, Collection: "persisted", Dimension: testDim}

	idx, err := vectorindex.NewChromemIndex(cfg, embeddings.NewHashEmbedder(testDim), nil)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, chunksFor("job1", corpus[:2]...)))

	reopened, err := vectorindex.NewChromemIndex(cfg, embeddings.NewHashEmbedder(testDim), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()
	emb := embeddings.NewHashEmbedder(testDim)

	idx, err := vectorindex.New(ctx, config.VectorIndexConfig{Backend: "flat", Dimension: testDim}, emb, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &vectorindex.FlatIndex{}, idx)

	idx, err = vectorindex.New(ctx, config.VectorIndexConfig{Backend: "chromem", Dimension: testDim, Collection: "c"}, emb, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &vectorindex.ChromemIndex{}, idx)

	_, err = vectorindex.New(ctx, config.VectorIndexConfig{Backend: "faiss", Dimension: testDim}, emb, logging.Nop())
	assert.Error(t, err)
}
