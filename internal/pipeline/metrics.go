package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insightverse",
		Subsystem: "pipeline",
		Name:      "jobs_queued",
		Help:      "Jobs waiting for a worker.",
	})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insightverse",
		Subsystem: "pipeline",
		Name:      "jobs_running",
		Help:      "Jobs currently held by a worker.",
	})

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightverse",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "End-to-end job duration by terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	jobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "pipeline",
			Name:      "job_failures_total",
			Help:      "Failed jobs by error kind.",
		},
		[]string{"kind"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightverse",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of the extract, index and generate stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage"},
	)

	chunksIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "pipeline",
			Name:      "chunks_indexed_total",
			Help:      "Chunks added to the vector index by modality.",
		},
		[]string{"modality"},
	)
)
