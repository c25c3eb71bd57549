// Package generation turns indexed content into study material: summaries,
// quizzes, concept explanations and flashcards.
//
// A job's retrieval context is built once and shared by every requested
// service. Each service call is isolated: a failed completion or output
// that cannot be parsed leaves that service's slot empty and never fails
// the job. Only the context search itself is fatal.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/llm"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/vectorindex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultTopK is the number of passages in the shared context.
const DefaultTopK = 5

// Service names used as result keys.
const (
	ServiceSummary    = "summary"
	ServiceQuiz       = "quiz"
	ServiceConcept    = "concept"
	ServiceFlashcards = "flashcards"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/generation")

// Result maps a service name to its artifact.
type Result map[string]any

// Searcher is the retrieval half of a vector index.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]vectorindex.Hit, error)
}

// Orchestrator runs the requested generation services for one job.
type Orchestrator struct {
	index  Searcher
	llm    llm.Completer
	topK   int
	logger *logging.Logger
}

// NewOrchestrator creates an Orchestrator. topK <= 0 uses DefaultTopK.
func NewOrchestrator(index Searcher, completer llm.Completer, topK int, logger *logging.Logger) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		index:  index,
		llm:    completer,
		topK:   topK,
		logger: logger.Named("generation"),
	}
}

// Context returns the passages nearest to query joined by blank lines.
func (o *Orchestrator) Context(ctx context.Context, query string) (string, int, error) {
	hits, err := o.index.Search(ctx, query, o.topK)
	if err != nil {
		return "", 0, fmt.Errorf("search context: %w", err)
	}
	return JoinPassages(hits), len(hits), nil
}

// JoinPassages concatenates hit texts in rank order, separated by blank
// lines.
func JoinPassages(hits []vectorindex.Hit) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}
	return strings.Join(texts, "\n\n")
}

// Generate runs every service in svc against the context for query.
// The returned Result only carries keys for requested services.
func (o *Orchestrator) Generate(ctx context.Context, query string, svc ingest.Services) (Result, error) {
	ctx, span := tracer.Start(ctx, "generation.Generate")
	defer span.End()

	passages, hits, err := o.Context(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context search failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("context.hits", hits))
	o.logger.Debug(ctx, "generation context built", zap.Int("hits", hits), zap.Int("chars", len(passages)))

	result := Result{}
	if len(svc.Summary) > 0 {
		result[ServiceSummary] = o.summaries(ctx, passages, svc.Summary)
	}
	if svc.Quiz != nil && len(svc.Quiz.Types) > 0 {
		result[ServiceQuiz] = o.quiz(ctx, passages, *svc.Quiz)
	}
	if len(svc.Concept) > 0 {
		result[ServiceConcept] = o.concepts(ctx, passages, svc.Concept)
	}
	if svc.Flashcards {
		result[ServiceFlashcards] = o.flashcards(ctx, passages)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// complete wraps one service call with metrics and failure logging. A
// failed call returns ok=false and is never propagated.
func (o *Orchestrator) complete(ctx context.Context, service, prompt string) (string, bool) {
	start := time.Now()
	out, err := o.llm.Complete(ctx, prompt)
	serviceDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		serviceDegraded.WithLabelValues(service, "completion").Inc()
		o.logger.Warn(ctx, "generation service degraded",
			zap.String("service", service),
			zap.Error(err),
		)
		return "", false
	}
	return out, true
}

func (o *Orchestrator) summaries(ctx context.Context, passages string, lengths []string) map[string]string {
	out := make(map[string]string, len(lengths))
	for _, length := range lengths {
		text, _ := o.complete(ctx, ServiceSummary, SummaryPrompt(passages, length))
		out[length] = strings.TrimSpace(text)
	}
	return out
}

func (o *Orchestrator) quiz(ctx context.Context, passages string, req ingest.QuizRequest) map[string]any {
	out := map[string]any{"difficulty": req.Difficulty}
	for _, qt := range req.Types {
		out[string(qt)] = []any{}

		raw, ok := o.complete(ctx, ServiceQuiz, QuizPrompt(passages, req.Difficulty, qt, QuizCount))
		if !ok {
			continue
		}
		items, err := ParseQuiz(raw, qt)
		if err != nil {
			serviceDegraded.WithLabelValues(ServiceQuiz, "parse").Inc()
			o.logger.Warn(ctx, "quiz output could not be recovered",
				zap.String("quiz_type", string(qt)),
				zap.Error(err),
			)
			continue
		}
		out[string(qt)] = items
	}
	return out
}

func (o *Orchestrator) concepts(ctx context.Context, passages string, modes []string) map[string]string {
	out := make(map[string]string, len(modes))
	for _, mode := range modes {
		text, _ := o.complete(ctx, ServiceConcept, ConceptPrompt(passages, mode))
		out[mode] = strings.TrimSpace(text)
	}
	return out
}

func (o *Orchestrator) flashcards(ctx context.Context, passages string) (cards []Flashcard) {
	cards = []Flashcard{}
	defer func() {
		if r := recover(); r != nil {
			serviceDegraded.WithLabelValues(ServiceFlashcards, "parse").Inc()
			o.logger.Warn(ctx, "flashcard mining failed", zap.Any("panic", r))
			cards = []Flashcard{}
		}
	}()

	raw, ok := o.complete(ctx, ServiceFlashcards, FlashcardPrompt(passages, FlashcardCount))
	if !ok {
		return cards
	}
	for _, note := range ParseFlashcards(raw) {
		cards = append(cards, Flashcard{Note: note})
	}
	return cards
}
