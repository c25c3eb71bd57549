// Package pipeline runs submitted jobs: it selects an extractor for the
// payload, chunks and indexes the text, then runs the requested generation
// services. Jobs run in the background on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/extraction"
	"github.com/fyrsmithlabs/insightverse/internal/generation"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/pipeline")

// Extractors holds one extractor per source kind. A nil entry fails jobs
// that need it with a Configuration error.
type Extractors struct {
	PDF     extraction.Extractor
	DOCX    extraction.Extractor
	Video   extraction.Extractor
	Website extraction.Extractor
	YouTube extraction.Extractor
}

// Indexer stores chunks for retrieval.
type Indexer interface {
	Add(ctx context.Context, chunks []chunker.Chunk) error
}

// Generator produces study material from indexed content.
type Generator interface {
	Generate(ctx context.Context, query string, svc ingest.Services) (generation.Result, error)
}

// Dispatcher runs the stages of a single job in order.
type Dispatcher struct {
	extractors Extractors
	index      Indexer
	generator  Generator
	logger     *logging.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(ex Extractors, index Indexer, gen Generator, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{
		extractors: ex,
		index:      index,
		generator:  gen,
		logger:     logger.Named("dispatcher"),
	}
}

// Select returns the extractor for p without doing any I/O.
func (d *Dispatcher) Select(p ingest.Payload) (extraction.Extractor, string, error) {
	var (
		x    extraction.Extractor
		name string
	)
	switch {
	case p.Kind == ingest.KindFile && p.File != nil:
		switch ft := p.File.FileType; {
		case ft == objectstore.TypePDF:
			x, name = d.extractors.PDF, "pdf"
		case ft == objectstore.TypeDOCX || ft == objectstore.TypeDOC:
			x, name = d.extractors.DOCX, "docx"
		case strings.HasPrefix(ft, "video/"):
			x, name = d.extractors.Video, "video"
		default:
			return nil, "", extraction.UnsupportedFileType(ft)
		}
	case p.Kind == ingest.KindLink && p.Link != nil:
		switch p.Link.LinkType {
		case ingest.LinkWebsite:
			x, name = d.extractors.Website, "website"
		case ingest.LinkYouTube:
			x, name = d.extractors.YouTube, "youtube"
		default:
			return nil, "", &extraction.Error{
				Kind:   extraction.KindConfiguration,
				Detail: fmt.Sprintf("Unsupported linkType: %s", p.Link.LinkType),
			}
		}
	default:
		return nil, "", &extraction.Error{
			Kind:   extraction.KindConfiguration,
			Detail: fmt.Sprintf("Unsupported sourceType: %s", p.Kind),
		}
	}
	if x == nil {
		return nil, "", &extraction.Error{
			Kind:   extraction.KindConfiguration,
			Detail: fmt.Sprintf("%s extraction is not configured", name),
		}
	}
	return x, name, nil
}

// Run executes extract, chunk, index and, when services were requested,
// generate. Any error is fatal for the job; generation services degrade
// on their own and never surface here.
func (d *Dispatcher) Run(ctx context.Context, jobID string, p ingest.Payload) (generation.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.String("source_type", string(p.Kind)),
	)

	fail := func(err error) (generation.Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, extraction.Detail(err))
		return nil, err
	}

	x, name, err := d.Select(p)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("extractor", name))

	start := time.Now()
	res, err := x.Extract(ctx, p)
	stageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(err)
	}
	d.logger.Info(ctx, "content extracted",
		zap.String("extractor", name),
		zap.Int("chars", len(res.Text)),
	)

	pieces, err := chunker.Split(res.Text, res.Modality)
	if err != nil {
		return fail(fmt.Errorf("chunk %s text: %w", name, err))
	}
	chunks := chunker.Build(jobID, pieces, res.Meta)
	chunksIndexed.WithLabelValues(string(res.Modality)).Add(float64(len(chunks)))

	if len(chunks) > 0 {
		start = time.Now()
		err = d.index.Add(ctx, chunks)
		stageDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())
		if err != nil {
			return fail(fmt.Errorf("index chunks: %w", err))
		}
	}
	d.logger.Info(ctx, "content indexed", zap.Int("chunks", len(chunks)))

	if !p.Services.Requested() {
		span.SetStatus(codes.Ok, "")
		return generation.Result{}, nil
	}

	start = time.Now()
	out, err := d.generator.Generate(ctx, p.Query, p.Services)
	stageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(fmt.Errorf("generate: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}
