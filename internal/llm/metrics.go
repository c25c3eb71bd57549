package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of completion requests by result",
		},
		[]string{"provider", "result"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightverse",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Completion latency in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retried completion HTTP requests",
		},
	)
)
