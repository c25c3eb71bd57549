package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Telemetry owns the installed providers until Shutdown.
type Telemetry struct {
	cfg *Config

	mu        sync.Mutex
	shutdowns []func(context.Context) error
	problems  []string
	closed    bool
}

// New installs the exporters described by cfg as the global providers. An
// exporter that cannot be built is recorded in Problems and skipped.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.problem("traces: %v", err)
	} else {
		otel.SetTracerProvider(tp)
		t.onShutdown(tp.Shutdown)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.problem("metrics: %v", err)
	} else if mp != nil {
		otel.SetMeterProvider(mp)
		t.onShutdown(mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) onShutdown(fn func(context.Context) error) {
	t.mu.Lock()
	t.shutdowns = append(t.shutdowns, fn)
	t.mu.Unlock()
}

func (t *Telemetry) problem(format string, args ...any) {
	t.mu.Lock()
	t.problems = append(t.problems, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

// Enabled reports whether at least one exporter is installed and Shutdown
// has not run.
func (t *Telemetry) Enabled() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && len(t.shutdowns) > 0
}

// Problems lists exporters that failed to start.
func (t *Telemetry) Problems() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.problems...)
}

// Shutdown flushes and stops the providers in reverse install order. When
// ctx has no deadline the configured shutdown timeout applies. Calling it
// twice is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	fns := t.shutdowns
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
