package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "insightverse")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `server:
  http_port: 9191
  upload_interval: 2s
vectorindex:
  backend: chromem
  chromem_path: /var/lib/insightverse/index
llm:
  model: llama3
  timeout: 30s
storage:
  access_key: minio
  secret_key: minio123
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.UploadInterval.Duration())
	assert.Equal(t, "chromem", cfg.VectorIndex.Backend)
	assert.Equal(t, "/var/lib/insightverse/index", cfg.VectorIndex.ChromemPath)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, "minio123", cfg.Storage.SecretKey.Value())

	// Defaults still fill the gaps.
	assert.Equal(t, 384, cfg.VectorIndex.Dimension)
	assert.Equal(t, "memory", cfg.Jobs.Backend)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: llama3\n"), 0600))

	t.Setenv("LLM_MODEL", "mistral-nemo")
	t.Setenv("PIPELINE_WORKERS", "9")
	t.Setenv("VECTORINDEX_QDRANT_HOST", "qdrant.internal")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mistral-nemo", cfg.LLM.Model)
	assert.Equal(t, 9, cfg.Pipeline.Workers)
	assert.Equal(t, "qdrant.internal", cfg.VectorIndex.QdrantHost)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 1\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsWorldReadableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0644))
	require.NoError(t, os.Chmod(path, 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_InvalidValueFailsValidation(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vectorindex:\n  backend: faiss\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SERVER_HTTP_PORT":        "server.http_port",
		"VECTORINDEX_QDRANT_HOST": "vectorindex.qdrant_host",
		"LLM_API_KEY":             "llm.api_key",
		"PATH":                    "path",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
