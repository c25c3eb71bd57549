package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore builds the stdout and/or OTEL cores and wraps them with sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), cfg.Level))
	}

	if cfg.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("insightverse", otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	if !cfg.Sampling.Enabled {
		return core, nil
	}

	// Errors bypass the sampler.
	sampled := zapcore.NewSamplerWithOptions(
		levelRange{Core: core, max: zapcore.WarnLevel},
		cfg.Sampling.Tick,
		cfg.Sampling.Initial,
		cfg.Sampling.Thereafter,
	)
	return zapcore.NewTee(levelRange{Core: core, min: zapcore.ErrorLevel, hasMin: true}, sampled), nil
}

// levelRange restricts a core to [min, max].
type levelRange struct {
	zapcore.Core
	min    zapcore.Level
	hasMin bool
	max    zapcore.Level
}

func (c levelRange) Enabled(lvl zapcore.Level) bool {
	if c.hasMin && lvl < c.min {
		return false
	}
	if !c.hasMin && lvl > c.max {
		return false
	}
	return c.Core.Enabled(lvl)
}

func (c levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c levelRange) With(fields []zapcore.Field) zapcore.Core {
	return levelRange{Core: c.Core.With(fields), min: c.min, hasMin: c.hasMin, max: c.max}
}
