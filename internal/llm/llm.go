// Package llm provides the text-completion capability used for study
// material generation and question answering.
//
// Completions go through langchaingo against a local Ollama server by
// default, or any OpenAI-compatible endpoint. Transient 5xx responses are
// retried at the HTTP layer with exponential backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultProvider    = "ollama"
	defaultModel       = "mistral"
	defaultOllamaURL   = "http://localhost:11434"
	defaultTimeout     = 600 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 3 * time.Second
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/llm")

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is a Completer backed by a langchaingo model.
type Client struct {
	model    llms.Model
	provider string
	name     string
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// New builds a Client from LLM config.
func New(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("llm")

	provider := cfg.Provider
	if provider == "" {
		provider = defaultProvider
	}
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	backoff := cfg.Backoff.Duration()
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &RetryTransport{
			MaxRetries:  retries,
			BaseBackoff: backoff,
			Logger:      logger,
		},
	}

	var (
		model llms.Model
		err   error
	)
	switch provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		model, err = ollama.New(
			ollama.WithModel(name),
			ollama.WithServerURL(baseURL),
			ollama.WithHTTPClient(httpClient),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(name),
			openai.WithHTTPClient(httpClient),
		}
		// Local OpenAI-compatible servers accept any token.
		token := cfg.APIKey.Value()
		if token == "" {
			token = "unused"
		}
		opts = append(opts, openai.WithToken(token))
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", provider, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		model:    model,
		provider: provider,
		name:     name,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		model:    model,
		provider: "custom",
		name:     "custom",
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   logger.Named("llm"),
	}
}

// Complete implements Completer. The raw model text is returned; callers
// trim or parse it.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", c.name),
		attribute.Int("prompt_chars", len(prompt)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	elapsed := time.Since(start)
	requestDuration.WithLabelValues(c.provider).Observe(elapsed.Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(c.provider, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn(ctx, "completion failed",
			zap.String("model", c.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", fmt.Errorf("completing prompt: %w", err)
	}
	if out == "" {
		requestsTotal.WithLabelValues(c.provider, "empty").Inc()
		span.SetStatus(codes.Error, ErrEmptyCompletion.Error())
		return "", ErrEmptyCompletion
	}

	requestsTotal.WithLabelValues(c.provider, "ok").Inc()
	span.SetAttributes(attribute.Int("completion_chars", len(out)))
	span.SetStatus(codes.Ok, "success")
	c.logger.Debug(ctx, "completion finished",
		zap.String("model", c.name),
		zap.Duration("elapsed", elapsed),
		zap.Int("chars", len(out)),
	)
	return out, nil
}
