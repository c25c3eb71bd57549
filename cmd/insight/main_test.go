package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
)

// execute runs the CLI against server and returns stdout.
func execute(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", server.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestHealth(t *testing.T) {
	t.Run("prints status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			writeJSON(w, HealthResponse{Status: "ok", Version: "1.2.3"})
		}))
		defer server.Close()

		out, err := execute(t, server, "health")
		require.NoError(t, err)
		assert.Contains(t, out, "Server Status: ok")
		assert.Contains(t, out, "Server Version: 1.2.3")
	})

	t.Run("non-200 is an error with the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := execute(t, server, "health")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "down for maintenance")
	})
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lecture.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))

	var uploaded atomic.Value
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/upload/presign", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lecture.pdf", req["filename"])
		assert.Equal(t, "application/pdf", req["contentType"])
		writeJSON(w, PresignResponse{
			Success:   true,
			UploadURL: server.URL + "/bucket/pdfs/abc-lecture.pdf",
			FileURL:   "s3://pdfs/abc-lecture.pdf",
		})
	})
	mux.HandleFunc("/bucket/pdfs/abc-lecture.pdf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		uploaded.Store(string(body))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	out, err := execute(t, server, "upload", path)
	require.NoError(t, err)
	assert.Equal(t, "s3://pdfs/abc-lecture.pdf\n", out)
	assert.Equal(t, "%PDF-1.4 test", uploaded.Load())
}

func TestUpload_RejectedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0o600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, PresignResponse{Success: false, Message: "Unsupported file format", ReceivedType: "text/plain"})
	}))
	defer server.Close()

	_, err := execute(t, server, "upload", path, "--type", "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported file format")
}

func TestSubmitOptionsPayload(t *testing.T) {
	tests := []struct {
		name    string
		opts    submitOptions
		check   func(t *testing.T, p ingest.Payload)
		wantErr string
	}{
		{
			name: "file with inferred type",
			opts: submitOptions{fileURL: "s3://pdfs/a.pdf", summary: []string{"short"}},
			check: func(t *testing.T, p ingest.Payload) {
				assert.Equal(t, ingest.KindFile, p.Kind)
				assert.Equal(t, "application/pdf", p.File.FileType)
				assert.Equal(t, []string{"short"}, p.Services.Summary)
			},
		},
		{
			name: "youtube link inferred",
			opts: submitOptions{link: "https://youtu.be/dQw4w9WgXcQ", quizDifficulty: "hard", quizTypes: []string{"mcq"}},
			check: func(t *testing.T, p ingest.Payload) {
				assert.Equal(t, ingest.KindLink, p.Kind)
				assert.Equal(t, ingest.LinkYouTube, p.Link.LinkType)
				require.NotNil(t, p.Services.Quiz)
				assert.Equal(t, "hard", p.Services.Quiz.Difficulty)
				assert.Equal(t, []ingest.QuizType{ingest.QuizMCQ}, p.Services.Quiz.Types)
			},
		},
		{
			name: "website link inferred",
			opts: submitOptions{link: "https://example.com/article"},
			check: func(t *testing.T, p ingest.Payload) {
				assert.Equal(t, ingest.LinkWebsite, p.Link.LinkType)
				assert.False(t, p.Services.Requested())
			},
		},
		{
			name:    "neither source",
			opts:    submitOptions{},
			wantErr: "one of --file or --link is required",
		},
		{
			name:    "both sources",
			opts:    submitOptions{fileURL: "s3://pdfs/a.pdf", link: "https://example.com"},
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.opts.payload()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestSubmit(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/data", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, SubmitResponse{Success: true, JobID: "job-1", Status: "PROCESSING"})
	}))
	defer server.Close()

	out, err := execute(t, server, "submit",
		"--link", "https://example.com/article",
		"--summary", "short,detailed",
		"--flashcards",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Job ID: job-1")
	assert.Contains(t, out, "Status: PROCESSING")

	assert.Equal(t, "LINK", got["sourceType"])
	assert.Equal(t, "website", got["linkType"])
	assert.Equal(t, "https://example.com/article", got["url"])
	services := got["services"].(map[string]any)
	assert.Equal(t, []any{"short", "detailed"}, services["summary"])
	assert.Equal(t, true, services["flashcards"])
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status/job-1", r.URL.Path)
		writeJSON(w, map[string]any{"jobId": "job-1", "status": "COMPLETED", "result": map[string]any{"summaries": map[string]string{"short": "s"}}})
	}))
	defer server.Close()

	out, err := execute(t, server, "status", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)
	assert.Contains(t, out, `"short": "s"`)
}

func TestWait(t *testing.T) {
	t.Run("polls until completed", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				writeJSON(w, map[string]any{"status": "PROCESSING"})
				return
			}
			writeJSON(w, map[string]any{"jobId": "job-1", "status": "COMPLETED"})
		}))
		defer server.Close()

		out, err := execute(t, server, "wait", "job-1", "--interval", "10ms")
		require.NoError(t, err)
		assert.Contains(t, out, `"status": "COMPLETED"`)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("failed job is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"jobId": "job-1", "status": "ERROR", "error": "Unsupported file type: text/plain"})
		}))
		defer server.Close()

		_, err := execute(t, server, "wait", "job-1", "--interval", "10ms")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unsupported file type: text/plain")
	})

	t.Run("times out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"status": "PROCESSING"})
		}))
		defer server.Close()

		_, err := execute(t, server, "wait", "job-1", "--interval", "10ms", "--timeout", "50ms")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "still PROCESSING")
	})
}

func TestAsk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is photosynthesis?", req["question"])
		assert.Equal(t, "job-9", req["jobId"])
		writeJSON(w, ChatResponse{Answer: "Plants turn light into energy."})
	}))
	defer server.Close()

	out, err := execute(t, server, "ask", "--job", "job-9", "what", "is", "photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, "Plants turn light into energy.\n", out)
}

func TestGuessContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", guessContentType("a/B.PDF"))
	assert.Equal(t, "video/mp4", guessContentType("talk.mp4"))
	assert.Equal(t, "application/msword", guessContentType("old.doc"))
	assert.Equal(t, "", guessContentType("noext"))
}
