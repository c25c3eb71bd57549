// Package http provides the HTTP API for insightverse.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/insight"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps request bodies; payloads only carry references.
const maxBodyBytes = 1 << 20

// API is the application surface served over HTTP.
type API interface {
	Submit(ctx context.Context, p ingest.Payload) (insight.Submission, error)
	Status(ctx context.Context, id string) (jobs.View, error)
	Answer(ctx context.Context, question string) (string, error)
	Presign(ctx context.Context, filename, contentType string) (objectstore.Upload, error)
}

// Server provides HTTP endpoints for insightverse.
type Server struct {
	echo    *echo.Echo
	api     API
	logger  *logging.Logger
	config  *Config
	metrics *requestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// UploadInterval is the minimum spacing between submissions from one
	// client address. Zero disables the limit.
	UploadInterval time.Duration
	CORSOrigins    []string
	Version        string
}

// NewServer creates a new HTTP server.
func NewServer(api API, logger *logging.Logger, cfg *Config) (*Server, error) {
	if api == nil {
		return nil, fmt.Errorf("api cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:           "0.0.0.0",
			Port:           8000,
			UploadInterval: 5 * time.Second,
			CORSOrigins:    []string{"http://localhost:3000"},
		}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", maxBodyBytes)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Commit the error response so the logged status is final.
				c.Error(err)
			}

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	s := &Server{
		echo:    e,
		api:     api,
		logger:  logger,
		config:  cfg,
		metrics: newRequestMetrics(nil, logger),
	}
	e.Use(s.metrics.middleware())

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleHealth)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	upload := s.echo.Group("/api/upload")
	upload.POST("/presign", s.handlePresign)
	upload.POST("/data", s.handleSubmit, s.submitLimiter())

	s.echo.GET("/api/status/:id", s.handleStatus)
	s.echo.POST("/api/chat", s.handleChat)
}

// submitLimiter allows one submission per UploadInterval per client IP.
func (s *Server) submitLimiter() echo.MiddlewareFunc {
	if s.config.UploadInterval <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Every(s.config.UploadInterval),
		Burst:     1,
		ExpiresIn: 10 * s.config.UploadInterval,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.metrics.recordThrottled(c.Request().Context())
			s.logger.Debug(c.Request().Context(), "submission rate limited", zap.String("client", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded: 1 per %s", s.config.UploadInterval))
		},
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handlePresign(c echo.Context) error {
	var req PresignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Filename == "" || req.ContentType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename and contentType are required")
	}

	ctx := c.Request().Context()
	up, err := s.api.Presign(ctx, req.Filename, req.ContentType)
	switch {
	case errors.Is(err, objectstore.ErrUnsupportedType):
		return c.JSON(http.StatusOK, PresignResponse{
			Success:      false,
			Message:      "Unsupported file format",
			ReceivedType: req.ContentType,
		})
	case errors.Is(err, insight.ErrUploadsDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "uploads are not configured")
	case errors.Is(err, objectstore.ErrInvalidReference):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	case err != nil:
		s.logger.Error(ctx, "presign failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "could not issue upload URL")
	}

	return c.JSON(http.StatusOK, PresignResponse{
		Success:   true,
		UploadURL: up.UploadURL,
		FileURL:   up.FileURL,
	})
}

func (s *Server) handleSubmit(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := ingest.Decode(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx := c.Request().Context()
	sub, err := s.api.Submit(ctx, p)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		s.logger.Error(ctx, "submission failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not start job")
	}

	resp := SubmitResponse{Success: true, JobID: sub.JobID, Status: string(sub.Status)}
	if !sub.IsNew {
		resp.Message = "Job already in progress"
		if sub.Status.Terminal() {
			resp.Message = "Job already finished"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	view, err := s.api.Status(ctx, c.Param("id"))
	if err != nil {
		s.logger.Error(ctx, "status lookup failed", zap.String("job.id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not read job")
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	answer, err := s.api.Answer(ctx, req.Question)
	if err != nil {
		s.logger.Error(ctx, "chat failed", zap.String("job.id", req.JobID), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "could not answer question")
	}
	return c.JSON(http.StatusOK, ChatResponse{Answer: answer})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within
// shutdownTimeout. It returns nil after a graceful shutdown.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
