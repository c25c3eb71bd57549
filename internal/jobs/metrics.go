package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightverse_jobs_created_total",
		Help: "Jobs created from distinct submissions",
	})

	jobsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insightverse_jobs_deduplicated_total",
		Help: "Submissions that reused an existing job",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insightverse_jobs_finished_total",
		Help: "Jobs that reached a terminal status",
	}, []string{"status"})
)
