package vectorindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesTotal is the number of stored entries per backend.
	EntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "insightverse",
			Subsystem: "vectorindex",
			Name:      "entries",
			Help:      "Number of chunk embeddings held by the index",
		},
		[]string{"backend"},
	)

	// OperationDuration tracks Add and Search latency.
	// Labels: backend, op (add, search)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightverse",
			Subsystem: "vectorindex",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// OperationErrors counts failed operations.
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightverse",
			Subsystem: "vectorindex",
			Name:      "operation_errors_total",
			Help:      "Total number of failed vector index operations",
		},
		[]string{"backend", "op"},
	)
)
