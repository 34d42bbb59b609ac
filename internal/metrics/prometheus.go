package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts accepted submissions by file type.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_jobs_submitted_total",
			Help: "Total number of submitted media jobs",
		},
		[]string{"file_type"},
	)

	// JobsCancelled counts successful cancellations by the status they were cancelled from.
	JobsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_jobs_cancelled_total",
			Help: "Total number of cancelled media jobs",
		},
		[]string{"from_status"},
	)

	// ExecutionsTotal counts finished executions by file type and outcome.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_executions_total",
			Help: "Total number of job executions",
		},
		[]string{"file_type", "outcome"},
	)

	// ExecutionDuration tracks claim-to-terminal time in seconds.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_execution_duration_seconds",
			Help:    "Duration of job executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
		},
		[]string{"file_type"},
	)

	// StageDuration tracks individual pipeline stages.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	// WorkersActive tracks the number of currently active workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reel_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// ItemsSkipped counts deliveries dropped at claim time (removed by cancel or duplicate).
	ItemsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_work_items_skipped_total",
			Help: "Total number of work items skipped because their key was already gone",
		},
	)

	// ItemsFailed counts deliveries handed back to the channel's retry/dead-letter policy.
	ItemsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_work_items_failed_total",
			Help: "Total number of work items returned to the channel as failed",
		},
	)

	// OrphansRepublished counts pending jobs re-published by the reconciliation sweep.
	OrphansRepublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reel_orphans_republished_total",
			Help: "Total number of pending jobs re-published by reconciliation",
		},
	)

	// StalledJobs is the number of processing jobs past the stall threshold at the last sweep.
	StalledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reel_stalled_jobs",
			Help: "Processing jobs whose lock is older than the stall threshold",
		},
	)

	// NotificationFailures counts lifecycle events that could not be delivered, by sink.
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_notification_failures_total",
			Help: "Total number of lifecycle notifications that failed",
		},
		[]string{"sink"},
	)
)
