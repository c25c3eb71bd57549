package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/insight"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeAPI struct {
	mu        sync.Mutex
	submitted []ingest.Payload
	sub       insight.Submission
	submitErr error
	view      jobs.View
	answer    string
	answerErr error
	question  string
	upload    objectstore.Upload
	presErr   error
}

func (f *fakeAPI) Submit(_ context.Context, p ingest.Payload) (insight.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, p)
	return f.sub, f.submitErr
}

func (f *fakeAPI) Status(_ context.Context, id string) (jobs.View, error) {
	v := f.view
	v.JobID = id
	return v, nil
}

func (f *fakeAPI) Answer(_ context.Context, question string) (string, error) {
	f.question = question
	return f.answer, f.answerErr
}

func (f *fakeAPI) Presign(context.Context, string, string) (objectstore.Upload, error) {
	return f.upload, f.presErr
}

const linkBody = `{"sourceType":"LINK","linkType":"website","url":"https://example.com","services":{"summary":["short"]}}`

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakeAPI{}, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 8000, server.config.Port)
		assert.Equal(t, 5*time.Second, server.config.UploadInterval)
		assert.Equal(t, []string{"http://localhost:3000"}, server.config.CORSOrigins)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeAPI{}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when api is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.Nop(), nil)
		assert.ErrorContains(t, err, "api cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &fakeAPI{}, 0)

	for _, path := range []string{"/", "/health"} {
		rec := serve(server, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "test", resp.Version)
	}
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t, &fakeAPI{}, 0)
	rec := serve(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandlePresign(t *testing.T) {
	t.Run("issues upload url", func(t *testing.T) {
		api := &fakeAPI{upload: objectstore.Upload{UploadURL: "http://minio/pdfs/a.pdf?sig", FileURL: "s3://pdfs/a.pdf"}}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/upload/presign", `{"filename":"a.pdf","contentType":"application/pdf"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp PresignResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "s3://pdfs/a.pdf", resp.FileURL)
		assert.Equal(t, "http://minio/pdfs/a.pdf?sig", resp.UploadURL)
	})

	t.Run("unsupported type is a soft failure", func(t *testing.T) {
		api := &fakeAPI{presErr: objectstore.ErrUnsupportedType}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/upload/presign", `{"filename":"a.png","contentType":"image/png"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Unsupported file format","receivedType":"image/png"}`, rec.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{}, 0)
		rec := serve(server, http.MethodPost, "/api/upload/presign", `{"filename":"a.pdf"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("uploads disabled", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{presErr: insight.ErrUploadsDisabled}, 0)
		rec := serve(server, http.MethodPost, "/api/upload/presign", `{"filename":"a.pdf","contentType":"application/pdf"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleSubmit(t *testing.T) {
	t.Run("new job", func(t *testing.T) {
		api := &fakeAPI{sub: insight.Submission{JobID: "job-1", IsNew: true, Status: jobs.StatusProcessing}}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/upload/data", linkBody)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"jobId":"job-1","status":"PROCESSING"}`, rec.Body.String())

		require.Len(t, api.submitted, 1)
		assert.Equal(t, ingest.LinkWebsite, api.submitted[0].Link.LinkType)
	})

	t.Run("duplicate job", func(t *testing.T) {
		api := &fakeAPI{sub: insight.Submission{JobID: "job-1", Status: jobs.StatusProcessing}}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/upload/data", linkBody)
		assert.JSONEq(t, `{"success":true,"jobId":"job-1","status":"PROCESSING","message":"Job already in progress"}`, rec.Body.String())
	})

	t.Run("invalid payload", func(t *testing.T) {
		api := &fakeAPI{}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/upload/data", `{"sourceType":"LINK","services":{}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, api.submitted)
	})

	t.Run("scheduling failure", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{submitErr: errors.New("runner is closed")}, 0)
		rec := serve(server, http.MethodPost, "/api/upload/data", linkBody)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleSubmit_RateLimited(t *testing.T) {
	api := &fakeAPI{sub: insight.Submission{JobID: "job-1", IsNew: true, Status: jobs.StatusProcessing}}
	server := setupTestServer(t, api, time.Minute)

	first := serve(server, http.MethodPost, "/api/upload/data", linkBody)
	second := serve(server, http.MethodPost, "/api/upload/data", linkBody)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, api.submitted, 1)

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/api/status/job-1", "").Code)
}

func TestHandleStatus(t *testing.T) {
	api := &fakeAPI{view: jobs.View{Status: jobs.StatusError, Error: "Website contains insufficient readable content"}}
	server := setupTestServer(t, api, 0)

	rec := serve(server, http.MethodGet, "/api/status/job-9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobId":"job-9","status":"ERROR","error":"Website contains insufficient readable content"}`, rec.Body.String())
}

func TestHandleChat(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		api := &fakeAPI{answer: "F = m a."}
		server := setupTestServer(t, api, 0)

		rec := serve(server, http.MethodPost, "/api/chat", `{"jobId":"job-1","question":"what is force?"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"answer":"F = m a."}`, rec.Body.String())
		assert.Equal(t, "what is force?", api.question)
	})

	t.Run("model failure", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{answerErr: errors.New("timeout")}, 0)
		rec := serve(server, http.MethodPost, "/api/chat", `{"question":"q"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down gracefully", func(t *testing.T) {
		server, err := NewServer(&fakeAPI{}, logging.Nop(), &Config{Host: "localhost", Port: 0})
		require.NoError(t, err)

		// Start server in background
		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start()
		}()

		// Give server time to start
		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, server.Shutdown(ctx))

		select {
		case err := <-errChan:
			assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
}

func TestServerRun(t *testing.T) {
	server, err := NewServer(&fakeAPI{}, logging.Nop(), &Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, time.Second) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{}, 0)
		rec := serve(server, http.MethodGet, "/health", "")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{}, 0)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = serve(server, http.MethodGet, "/panic", "")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("allows the configured origin", func(t *testing.T) {
		server := setupTestServer(t, &fakeAPI{}, 0)

		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})

	t.Run("logs requests with status", func(t *testing.T) {
		logger := logging.NewTestLogger()
		server, err := NewServer(&fakeAPI{}, logger.Logger, &Config{CORSOrigins: []string{"http://localhost:3000"}})
		require.NoError(t, err)

		serve(server, http.MethodGet, "/api/status/x", "")
		logger.AssertLogged(t, zapcore.InfoLevel, "http request")
	})
}

// setupTestServer creates a test server; interval 0 disables the
// submission limit.
func setupTestServer(t *testing.T, api API, interval time.Duration) *Server {
	t.Helper()

	server, err := NewServer(api, logging.Nop(), &Config{
		Host:           "localhost",
		Port:           8000,
		UploadInterval: interval,
		CORSOrigins:    []string{"http://localhost:3000"},
		Version:        "test",
	})
	require.NoError(t, err)
	return server
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}
