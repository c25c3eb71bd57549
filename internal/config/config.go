// Package config provides configuration loading for insightverse.
//
// Values come from an optional YAML file and are overridden by environment
// variables; see LoadWithFile for precedence and key mapping.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete insightverse configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Jobs        JobsConfig        `koanf:"jobs"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	VectorIndex VectorIndexConfig `koanf:"vectorindex"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Speech      SpeechConfig      `koanf:"speech"`
	OCR         OCRConfig         `koanf:"ocr"`
	Media       MediaConfig       `koanf:"media"`
	Storage     StorageConfig     `koanf:"storage"`
	Events      EventsConfig      `koanf:"events"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// UploadInterval is the minimum spacing between two submissions from
	// the same client address.
	UploadInterval Duration `koanf:"upload_interval"`
	CORSOrigins    []string `koanf:"cors_origins"`
}

// JobsConfig selects the job persistence backend.
type JobsConfig struct {
	Backend    string `koanf:"backend"` // memory | sqlite
	SQLitePath string `koanf:"sqlite_path"`
}

// PipelineConfig sizes the background worker pool.
type PipelineConfig struct {
	Workers     int `koanf:"workers"`
	ContextTopK int `koanf:"context_top_k"`
}

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Backend         string `koanf:"backend"` // flat | chromem | qdrant
	Dimension       int    `koanf:"dimension"`
	Collection      string `koanf:"collection"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantTLS       bool   `koanf:"qdrant_tls"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed | tei
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig configures the text-completion capability.
type LLMConfig struct {
	Provider   string   `koanf:"provider"` // ollama | openai
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	Backoff    Duration `koanf:"backoff"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// SpeechConfig configures the speech transcription capability.
type SpeechConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// OCRConfig configures the OCR capability.
type OCRConfig struct {
	TesseractPath string `koanf:"tesseract_path"`
	Language      string `koanf:"language"`
}

// MediaConfig configures media tooling and extraction network calls.
type MediaConfig struct {
	FFmpegPath    string   `koanf:"ffmpeg_path"`
	FFprobePath   string   `koanf:"ffprobe_path"`
	PdftoppmPath  string   `koanf:"pdftoppm_path"`
	YtDlpPath     string   `koanf:"ytdlp_path"`
	FrameInterval Duration `koanf:"frame_interval"`
	FetchTimeout  Duration `koanf:"fetch_timeout"`
	TranscriptURL string   `koanf:"transcript_url"`
	RasterDPI     int      `koanf:"raster_dpi"`
	WorkDir       string   `koanf:"work_dir"`
}

// StorageConfig configures the S3-compatible object store.
type StorageConfig struct {
	Endpoint      string   `koanf:"endpoint"`
	AccessKey     Secret   `koanf:"access_key"`
	SecretKey     Secret   `koanf:"secret_key"`
	Secure        bool     `koanf:"secure"`
	Region        string   `koanf:"region"`
	PresignExpiry Duration `koanf:"presign_expiry"`
}

// EventsConfig configures job lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc | http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Jobs.Backend {
	case "memory":
	case "sqlite":
		if c.Jobs.SQLitePath == "" {
			return errors.New("jobs.sqlite_path required for sqlite backend")
		}
	default:
		return fmt.Errorf("unknown jobs backend %q", c.Jobs.Backend)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}

	switch c.VectorIndex.Backend {
	case "flat", "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vectorindex backend %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Dimension <= 0 {
		return fmt.Errorf("vectorindex.dimension must be positive, got %d", c.VectorIndex.Dimension)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}

	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if !c.LLM.APIKey.IsSet() && c.LLM.BaseURL == "" {
			return errors.New("llm.api_key or llm.base_url required for openai provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		return errors.New("events.nats_url required when events are enabled")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.UploadInterval == 0 {
		cfg.Server.UploadInterval = Duration(5 * time.Second)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}

	if cfg.Jobs.Backend == "" {
		cfg.Jobs.Backend = "memory"
	}

	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.ContextTopK == 0 {
		cfg.Pipeline.ContextTopK = 5
	}

	if cfg.VectorIndex.Backend == "" {
		cfg.VectorIndex.Backend = "flat"
	}
	if cfg.VectorIndex.Dimension == 0 {
		cfg.VectorIndex.Dimension = 384 // all-MiniLM-L6-v2
	}
	if cfg.VectorIndex.Collection == "" {
		cfg.VectorIndex.Collection = "insightverse_chunks"
	}
	if cfg.VectorIndex.QdrantHost == "" {
		cfg.VectorIndex.QdrantHost = "localhost"
	}
	if cfg.VectorIndex.QdrantPort == 0 {
		cfg.VectorIndex.QdrantPort = 6334
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "mistral"
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(600 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.Backoff == 0 {
		cfg.LLM.Backoff = Duration(3 * time.Second)
	}

	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = "http://localhost:8001/v1/"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "whisper-1"
	}

	if cfg.OCR.TesseractPath == "" {
		cfg.OCR.TesseractPath = "tesseract"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}

	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.FFprobePath == "" {
		cfg.Media.FFprobePath = "ffprobe"
	}
	if cfg.Media.PdftoppmPath == "" {
		cfg.Media.PdftoppmPath = "pdftoppm"
	}
	if cfg.Media.YtDlpPath == "" {
		cfg.Media.YtDlpPath = "yt-dlp"
	}
	if cfg.Media.FrameInterval == 0 {
		cfg.Media.FrameInterval = Duration(5 * time.Second)
	}
	if cfg.Media.FetchTimeout == 0 {
		cfg.Media.FetchTimeout = Duration(20 * time.Second)
	}
	if cfg.Media.TranscriptURL == "" {
		cfg.Media.TranscriptURL = "https://www.youtube.com/api/timedtext"
	}
	if cfg.Media.RasterDPI == 0 {
		cfg.Media.RasterDPI = 300
	}

	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = "localhost:9000"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = Duration(10 * time.Minute)
	}

	if cfg.Events.NATSURL == "" {
		cfg.Events.NATSURL = "nats://localhost:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "insightverse.jobs"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "insightverse"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
