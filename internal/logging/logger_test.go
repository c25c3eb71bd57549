package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format"},
		{"no outputs", func(c *Config) { c.Stdout = false }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			logger, err := NewLogger(cfg, nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, logger)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithJobID(context.Background(), "job-123")
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "job started", zap.String("source", "pdf"))

	tl.AssertLogged(t, zapcore.InfoLevel, "job started")
	tl.AssertField(t, "job started", "job.id", "job-123")
	tl.AssertField(t, "job started", "request.id", "req-9")
	tl.AssertField(t, "job started", "source", "pdf")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "job started")

	tl.Info(WithJobID(context.Background(), "job-456"), "job started")
	assert.Equal(t, 1, tl.ForJob("job-123").Len())
	assert.Equal(t, 1, tl.ForJob("job-456").Len())
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("pipeline").With(zap.String("component", "runner"))
	child.Warn(context.Background(), "slow stage")

	entries := tl.FilterMessage("slow stage").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "runner", entries[0].ContextMap()["component"])
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-abcdef"))
	assert.Equal(t, "[REDACTED:9]", f.String)
}

func TestRedactingEncoder(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	z := zap.New(core)

	z.Info("upload",
		zap.String("access_key", "AKIA123"),
		zap.String("url", "https://minio/pdfs/a.pdf?X-Amz-Signature=deadbeef"),
		zap.String("header", "Bearer abc.def"),
		zap.String("file", "a.pdf"),
	)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "[REDACTED]", got["access_key"])
	assert.NotContains(t, got["url"], "deadbeef")
	assert.Equal(t, "[REDACTED]", got["header"])
	assert.Equal(t, "a.pdf", got["file"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{})
	require.NoError(t, err)

	var buf bytes.Buffer
	z := zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel))
	z.Info("x", zap.String("password", "hunter2"))
	assert.Contains(t, buf.String(), "hunter2")
}

func TestNewCore_SamplingKeepsErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	core, err := newCore(cfg, nil)
	require.NoError(t, err)

	assert.True(t, core.Enabled(zapcore.ErrorLevel))
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
