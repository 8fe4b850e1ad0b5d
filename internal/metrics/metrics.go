package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ceejudge_evaluations_total",
			Help: "Total number of evaluations by outcome status",
		},
		[]string{"status"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ceejudge_evaluation_duration_seconds",
			Help:    "Wall time of an evaluation, per phase",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"phase"}, // acquire, transfer, run, release, total
	)

	ActiveEnvironments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ceejudge_active_environments",
			Help: "Sandbox containers currently held by evaluations",
		},
	)

	ReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ceejudge_release_failures_total",
			Help: "Sandbox containers that could not be removed",
		},
	)

	ReapedContainers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ceejudge_reaped_containers_total",
			Help: "Leaked sandbox containers removed by the reaper",
		},
	)

	JobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ceejudge_jobs_enqueued_total",
			Help: "Jobs accepted by the submit endpoint",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ceejudge_queue_depth",
			Help: "Jobs waiting in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ceejudge_active_workers",
			Help: "Workers currently evaluating a job",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ceejudge_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
