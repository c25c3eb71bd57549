// Package insight is the application surface shared by the HTTP API and
// the CLI: submit a source, poll its job, ask questions about indexed
// content and presign uploads.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/generation"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/llm"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/insight")

// ErrUploadsDisabled is returned by Presign when no object store is
// configured.
var ErrUploadsDisabled = errors.New("uploads are not configured")

// JobStore creates and reads jobs.
type JobStore interface {
	CreateOrReuse(ctx context.Context, p ingest.Payload) (string, bool, error)
	Fail(ctx context.Context, id string, detail string) error
	Get(ctx context.Context, id string) (jobs.View, error)
}

// Scheduler runs a job in the background.
type Scheduler interface {
	Submit(jobID string, p ingest.Payload) error
}

// Presigner issues direct upload URLs.
type Presigner interface {
	IssueUploadURL(ctx context.Context, contentType, name string) (objectstore.Upload, error)
}

// Submission is the outcome of Submit.
type Submission struct {
	JobID  string      `json:"jobId"`
	IsNew  bool        `json:"-"`
	Status jobs.Status `json:"status"`
}

// Config wires a Service. Presigner may be nil.
type Config struct {
	Jobs      JobStore
	Scheduler Scheduler
	Index     generation.Searcher
	LLM       llm.Completer
	Presigner Presigner
	TopK      int
	Logger    *logging.Logger
}

// Service implements the produced operations.
type Service struct {
	jobs      JobStore
	scheduler Scheduler
	index     generation.Searcher
	llm       llm.Completer
	presigner Presigner
	topK      int
	logger    *logging.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Jobs == nil || cfg.Scheduler == nil {
		return nil, errors.New("insight: job store and scheduler are required")
	}
	if cfg.Index == nil || cfg.LLM == nil {
		return nil, errors.New("insight: index and completer are required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = generation.DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Service{
		jobs:      cfg.Jobs,
		scheduler: cfg.Scheduler,
		index:     cfg.Index,
		llm:       cfg.LLM,
		presigner: cfg.Presigner,
		topK:      cfg.TopK,
		logger:    cfg.Logger.Named("insight"),
	}, nil
}

// Submit creates or reuses the job for p and schedules new jobs. A
// duplicate submission returns the existing job and its current status.
func (s *Service) Submit(ctx context.Context, p ingest.Payload) (Submission, error) {
	if err := p.Validate(); err != nil {
		return Submission{}, err
	}

	id, isNew, err := s.jobs.CreateOrReuse(ctx, p)
	if err != nil {
		return Submission{}, fmt.Errorf("create job: %w", err)
	}

	if !isNew {
		view, err := s.jobs.Get(ctx, id)
		if err != nil {
			return Submission{}, err
		}
		return Submission{JobID: id, Status: view.Status}, nil
	}

	if err := s.scheduler.Submit(id, p); err != nil {
		// The job exists but will never run; record that instead of
		// leaving it PROCESSING.
		if ferr := s.jobs.Fail(ctx, id, "Job could not be scheduled"); ferr != nil {
			s.logger.Warn(ctx, "failed to record scheduling failure", zap.String("job.id", id), zap.Error(ferr))
		}
		return Submission{}, fmt.Errorf("schedule job %s: %w", id, err)
	}
	return Submission{JobID: id, IsNew: true, Status: jobs.StatusProcessing}, nil
}

// Status returns the job snapshot; unknown ids read as PROCESSING.
func (s *Service) Status(ctx context.Context, id string) (jobs.View, error) {
	return s.jobs.Get(ctx, id)
}

// Answer replies to question using only retrieved passages. When nothing
// is retrieved the fixed refusal is returned without calling the model.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "insight.Answer")
	defer span.End()

	question = strings.TrimSpace(question)
	hits, err := s.index.Search(ctx, question, s.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return "", fmt.Errorf("search: %w", err)
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	if len(hits) == 0 {
		s.logger.Debug(ctx, "no passages for question")
		span.SetStatus(codes.Ok, "refused")
		return generation.Refusal, nil
	}

	answer, err := s.llm.Complete(ctx, generation.ChatPrompt(generation.JoinPassages(hits), question))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("answer: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return strings.TrimSpace(answer), nil
}

// Presign returns a direct upload URL for filename. Unsupported content
// types return an error wrapping objectstore.ErrUnsupportedType.
func (s *Service) Presign(ctx context.Context, filename, contentType string) (objectstore.Upload, error) {
	if s.presigner == nil {
		return objectstore.Upload{}, ErrUploadsDisabled
	}
	return s.presigner.IssueUploadURL(ctx, contentType, filename)
}
