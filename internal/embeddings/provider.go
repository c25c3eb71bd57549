package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput indicates an empty batch.
	ErrEmptyInput = errors.New("empty or nil input texts")
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmbeddingFailed indicates the model or server failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// DefaultModel matches the 384-dimension index default.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Embedder converts text into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that owns resources.
type Provider interface {
	Embedder
	Dimension() int
	Close() error
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string // fastembed | tei
	Model    string
	BaseURL  string // tei only
	CacheDir string // fastembed only
}

var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// DimensionOf returns the output dimension of model. Unknown models are
// guessed from their name.
func DimensionOf(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	switch m := strings.ToLower(model); {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates the configured provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	switch cfg.Provider {
	case "fastembed", "":
		p, err := NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		p, err := NewTEIProvider(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
