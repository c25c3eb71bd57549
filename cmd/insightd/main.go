// Insightd is the insightverse ingestion and study-aid daemon.
//
// It serves the HTTP API, runs extraction jobs on a bounded worker pool and
// answers questions over everything indexed so far.
//
// Configuration is loaded from ~/.config/insightverse/config.yaml and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	insightd
//
//	# Use a specific config file
//	insightd -config /etc/insightverse/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 VECTORINDEX_BACKEND=qdrant insightd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/embeddings"
	"github.com/fyrsmithlabs/insightverse/internal/extraction"
	"github.com/fyrsmithlabs/insightverse/internal/generation"
	httpserver "github.com/fyrsmithlabs/insightverse/internal/http"
	"github.com/fyrsmithlabs/insightverse/internal/insight"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/llm"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"github.com/fyrsmithlabs/insightverse/internal/pipeline"
	"github.com/fyrsmithlabs/insightverse/internal/telemetry"
	"github.com/fyrsmithlabs/insightverse/internal/vectorindex"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/insightverse/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  insightd           Start the insightverse daemon\n")
			fmt.Fprintf(os.Stderr, "  insightd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("insightd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Validate configuration
//  2. Initialize logger and telemetry
//  3. Build infrastructure (embedder, vector index, job store, object store)
//  4. Wire extraction, generation and the worker pool
//  5. Serve HTTP until ctx is done, then drain in-flight jobs
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting insightd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.Enabled()),
		zap.Strings("telemetry_problems", tel.Problems()),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svc, runner, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpserver.NewServer(svc, logger, &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		UploadInterval: cfg.Server.UploadInterval.Duration(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Int("workers", cfg.Pipeline.Workers),
	)

	serveErr := srv.Run(ctx, cfg.Server.ShutdownTimeout.Duration())

	drainJobs(runner, cfg.Server.ShutdownTimeout.Duration(), logger)

	return serveErr
}

// drainJobs gives queued and running jobs up to timeout to finish.
func drainJobs(runner *pipeline.Runner, timeout time.Duration, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pending := runner.Pending()
	if pending > 0 {
		logger.Info(ctx, "draining jobs", zap.Int("pending", pending), zap.Duration("timeout", timeout))
	}
	// Close cancels whatever is still running once ctx expires.
	if err := runner.Close(ctx); err != nil {
		logger.Warn(ctx, "in-flight jobs abandoned", zap.Int("pending", pending), zap.Error(err))
	}
}

// dependencies holds infrastructure that owns resources.
type dependencies struct {
	embedder embeddings.Provider
	index    vectorindex.Index
	llm      *llm.Client
	store    jobs.Store
	events   jobs.EventPublisher
	natsConn *nats.Conn
	objects  *objectstore.Client
}

// Close releases every resource in reverse order of acquisition.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if c, ok := d.store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := d.index.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.NewDefaultConfig()
	lc.Level = level
	lc.Format = cfg.Logging.Format
	return logging.NewLogger(lc, nil)
}

// initDependencies builds the infrastructure layer. Object storage and
// event publishing degrade to disabled rather than failing startup.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{events: jobs.NopPublisher{}}

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	deps.embedder = embedder
	if dim := embedder.Dimension(); dim != cfg.VectorIndex.Dimension {
		deps.Close()
		return nil, fmt.Errorf("embedding model %q produces %d dimensions, vectorindex.dimension is %d",
			cfg.Embeddings.Model, dim, cfg.VectorIndex.Dimension)
	}

	logger.Info(ctx, "embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
	)

	index, err := vectorindex.New(ctx, cfg.VectorIndex, embedder, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	deps.index = index

	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	deps.llm = client

	switch cfg.Jobs.Backend {
	case "sqlite":
		store, err := jobs.NewSQLiteStore(cfg.Jobs.SQLitePath)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to open job store: %w", err)
		}
		deps.store = store
	default:
		deps.store = jobs.NewMemoryStore()
	}

	if cfg.Events.Enabled {
		nc, err := nats.Connect(cfg.Events.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			logger.Warn(ctx, "job events disabled", zap.String("url", cfg.Events.NATSURL), zap.Error(err))
		} else {
			deps.natsConn = nc
			deps.events = jobs.NewNATSPublisher(nc, cfg.Events.SubjectPrefix)
			logger.Info(ctx, "connected to NATS", zap.String("url", cfg.Events.NATSURL))
		}
	}

	objects, err := objectstore.New(cfg.Storage, logger)
	if err != nil {
		logger.Warn(ctx, "uploads disabled", zap.Error(err))
	} else {
		if err := objects.EnsureBuckets(ctx); err != nil {
			logger.Warn(ctx, "failed to ensure buckets", zap.String("endpoint", cfg.Storage.Endpoint), zap.Error(err))
		}
		deps.objects = objects
	}

	logger.Info(ctx, "dependencies initialized",
		zap.String("vectorindex", cfg.VectorIndex.Backend),
		zap.String("jobs", cfg.Jobs.Backend),
		zap.Bool("events", deps.natsConn != nil),
		zap.Bool("uploads", deps.objects != nil),
	)

	return deps, nil
}

// initServices wires extraction, generation and the worker pool into the
// application service.
func initServices(cfg *config.Config, deps *dependencies, logger *logging.Logger) (*insight.Service, *pipeline.Runner, error) {
	ocr := media.NewTesseract(cfg.OCR)
	tools := media.NewTools(cfg.Media)
	httpClient := extraction.NewHTTPClient(cfg.Media.FetchTimeout.Duration())
	speech := media.NewWhisperTranscriber(cfg.Speech, nil)

	source := extraction.Source{}
	var presigner insight.Presigner
	if deps.objects != nil {
		source.Fetcher = deps.objects
		presigner = deps.objects
	}

	ex := pipeline.Extractors{
		PDF: &extraction.PDFExtractor{
			Source:  source,
			OCR:     ocr,
			Tools:   tools,
			DPI:     cfg.Media.RasterDPI,
			WorkDir: cfg.Media.WorkDir,
			Logger:  logger,
		},
		DOCX: &extraction.DOCXExtractor{
			Source: source,
			OCR:    ocr,
			Logger: logger,
		},
		Video: &extraction.VideoExtractor{
			Source:        source,
			Speech:        speech,
			OCR:           ocr,
			Tools:         tools,
			FrameInterval: cfg.Media.FrameInterval.Duration(),
			WorkDir:       cfg.Media.WorkDir,
			Logger:        logger,
		},
		Website: &extraction.WebsiteExtractor{
			Client: httpClient,
			Logger: logger,
		},
		YouTube: &extraction.YouTubeExtractor{
			Client:        httpClient,
			TranscriptURL: cfg.Media.TranscriptURL,
			Speech:        speech,
			Tools:         tools,
			WorkDir:       cfg.Media.WorkDir,
			Logger:        logger,
		},
	}

	orchestrator := generation.NewOrchestrator(deps.index, deps.llm, cfg.Pipeline.ContextTopK, logger)
	dispatcher := pipeline.NewDispatcher(ex, deps.index, orchestrator, logger)
	manager := jobs.NewManager(deps.store, deps.events, logger)
	runner := pipeline.NewRunner(dispatcher, manager, cfg.Pipeline.Workers, logger)

	svc, err := insight.New(insight.Config{
		Jobs:      manager,
		Scheduler: runner,
		Index:     deps.index,
		LLM:       deps.llm,
		Presigner: presigner,
		TopK:      cfg.Pipeline.ContextTopK,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, errors.Join(err, runner.Close(context.Background()))
	}
	return svc, runner, nil
}
