package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/insightverse/internal/http"

// requestMetrics records per-route request counts, latency and in-flight
// requests, plus submissions refused by the upload limiter.
type requestMetrics struct {
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	throttled metric.Int64Counter
}

// newRequestMetrics builds instruments on meter. An instrument that cannot
// be created is logged and left nil; recording skips it.
func newRequestMetrics(meter metric.Meter, logger *logging.Logger) *requestMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "failed to create instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &requestMetrics{}
	var err error

	m.requests, err = meter.Int64Counter("insightverse.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status code."),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.latency, err = meter.Float64Histogram("insightverse.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status code."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	warn("request_duration_seconds", err)

	m.inFlight, err = meter.Int64UpDownCounter("insightverse.http.in_flight_requests",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}"))
	warn("in_flight_requests", err)

	m.throttled, err = meter.Int64Counter("insightverse.http.submissions_throttled_total",
		metric.WithDescription("Submissions refused by the per-client upload interval."),
		metric.WithUnit("{request}"))
	warn("submissions_throttled_total", err)

	return m
}

// middleware records every request against its matched route.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", statusOf(c, err)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

func (m *requestMetrics) recordThrottled(ctx context.Context) {
	if m.throttled != nil {
		m.throttled.Add(ctx, 1)
	}
}

// routeLabel is the matched route pattern, so /api/status/:id never
// expands to one series per job.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

// statusOf is the status the client will see. Errors are rendered by an
// outer middleware, so an uncommitted response takes its code from err.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
