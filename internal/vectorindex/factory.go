package vectorindex

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"go.uber.org/zap"
)

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.VectorIndexConfig, embedder embeddings.Embedder, logger *logging.Logger) (Index, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("vectorindex")

	switch cfg.Backend {
	case "", flatBackend:
		idx, err := NewFlatIndex(embedder, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "using in-memory flat index", zap.Int("dimension", cfg.Dimension))
		return idx, nil
	case chromemBackend:
		idx, err := NewChromemIndex(ChromemConfig{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			Collection: cfg.Collection,
			Dimension:  cfg.Dimension,
		}, embedder, logger)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "using chromem index",
			zap.String("collection", cfg.Collection),
			zap.String("path", cfg.ChromemPath),
		)
		return idx, nil
	case qdrantBackend:
		idx, err := NewQdrantIndex(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			UseTLS:     cfg.QdrantTLS,
			Collection: cfg.Collection,
			Dimension:  cfg.Dimension,
		}, embedder, logger)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "using qdrant index",
			zap.String("collection", cfg.Collection),
			zap.String("host", cfg.QdrantHost),
			zap.Int("port", cfg.QdrantPort),
		)
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector index backend %q", cfg.Backend)
	}
}
