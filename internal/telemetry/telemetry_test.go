package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightverse/internal/config"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"enabled defaults", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, ""},
		{"rate out of range", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, "sample_rate"},
		{"zero interval", func(c *Config) { c.Enabled = true; c.MetricsInterval = 0 }, "interval"},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.ShutdownTimeout = 0 }, "shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4317"))
	assert.True(t, isLocalEndpoint("[::1]:4317"))
	assert.True(t, isLocalEndpoint("http://localhost:4318"))
	assert.False(t, isLocalEndpoint("collector:4317"))
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Protocol:    "http/protobuf",
		Insecure:    true,
		ServiceName: "insightd",
		SampleRate:  0.25,
	}, "1.4.0")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "insightd", cfg.ServiceName)
	assert.Equal(t, "1.4.0", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
	assert.NoError(t, cfg.Validate())

	defaults := FromConfig(config.TelemetryConfig{}, "")
	assert.Equal(t, "localhost:4317", defaults.Endpoint)
	assert.Equal(t, "dev", defaults.ServiceVersion)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.Empty(t, tel.Problems())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = -1
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.Problems())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestShutdown_ReverseOrderOnce(t *testing.T) {
	tel := &Telemetry{cfg: NewDefaultConfig()}
	var order []string
	tel.onShutdown(func(context.Context) error { order = append(order, "traces"); return nil })
	tel.onShutdown(func(context.Context) error { order = append(order, "metrics"); return errors.New("flush failed") })
	assert.True(t, tel.Enabled())

	err := tel.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, []string{"metrics", "traces"}, order)
	assert.False(t, tel.Enabled())

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Len(t, order, 2)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "collector:4318", hostPort("https://collector:4318"))
	assert.Equal(t, "localhost:4318", hostPort("http://localhost:4318"))
	assert.Equal(t, "localhost:4317", hostPort("localhost:4317"))
}
