package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	serviceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightverse",
			Subsystem: "generation",
			Name:      "service_duration_seconds",
			Help:      "Time spent in one generation service completion.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	serviceDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "generation",
			Name:      "service_degraded_total",
			Help:      "Generation services that produced an empty result.",
		},
		[]string{"service", "reason"},
	)
)
