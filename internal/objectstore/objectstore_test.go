package objectstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		raw     string
		want    objectstore.Reference
		wantErr bool
	}{
		{raw: "s3://pdfs/notes.pdf", want: objectstore.Reference{Bucket: "pdfs", Object: "notes.pdf"}},
		{raw: "s3://videos/2024/lecture.mp4", want: objectstore.Reference{Bucket: "videos", Object: "2024/lecture.mp4"}},
		{raw: "https://pdfs/notes.pdf", wantErr: true},
		{raw: "s3://pdfs", wantErr: true},
		{raw: "s3:///notes.pdf", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := objectstore.ParseReference(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, objectstore.ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

func TestBucketFor(t *testing.T) {
	tests := map[string]string{
		"video/mp4":          "videos",
		"application/pdf":    "pdfs",
		"application/msword": "docs",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docs",
	}
	for ct, bucket := range tests {
		got, ok := objectstore.BucketFor(ct)
		assert.True(t, ok, ct)
		assert.Equal(t, bucket, got, ct)
	}

	_, ok := objectstore.BucketFor("image/png")
	assert.False(t, ok)
}

func newClient(t *testing.T, endpoint string) *objectstore.Client {
	t.Helper()
	c, err := objectstore.New(config.StorageConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}, logging.Nop())
	require.NoError(t, err)
	return c
}

func TestIssueUploadURL(t *testing.T) {
	c := newClient(t, "127.0.0.1:9000")

	up, err := c.IssueUploadURL(context.Background(), "application/pdf", "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "s3://pdfs/notes.pdf", up.FileURL)

	u, err := url.Parse(up.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "/pdfs/notes.pdf", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestIssueUploadURL_Unsupported(t *testing.T) {
	c := newClient(t, "127.0.0.1:9000")

	_, err := c.IssueUploadURL(context.Background(), "image/png", "photo.png")
	assert.ErrorIs(t, err, objectstore.ErrUnsupportedType)
}

func TestFetchBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pdfs/notes.pdf":
			w.Header().Set("ETag", `"abc123"`)
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		}
	}))
	defer srv.Close()

	c := newClient(t, strings.TrimPrefix(srv.URL, "http://"))

	data, err := c.FetchBytes(context.Background(), objectstore.Reference{Bucket: "pdfs", Object: "notes.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	_, err = c.FetchBytes(context.Background(), objectstore.Reference{Bucket: "pdfs", Object: "missing.pdf"})
	require.Error(t, err)
	assert.True(t, objectstore.IsNotFound(err))
}
