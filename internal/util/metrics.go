package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_jobs_started_total",
		Help: "Total number of jobs picked up by workers",
	}, []string{"kind"})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_jobs_completed_total",
		Help: "Total number of jobs that reached done",
	}, []string{"kind"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_jobs_failed_total",
		Help: "Total number of jobs that reached failed",
	}, []string{"kind", "reason"})

	TaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_task_retries_total",
		Help: "Total number of task retries scheduled",
	}, []string{"kind"})

	TasksDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_tasks_dead_lettered_total",
		Help: "Total number of tasks routed to the dead-letter queue",
	}, []string{"kind"})

	BatchesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batches_processed_total",
		Help: "Total number of committed batches",
	}, []string{"kind"})

	RowsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rows_processed_total",
		Help: "Total number of CSV rows upserted",
	})

	RowErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_row_errors_total",
		Help: "Total number of CSV rows rejected during parsing",
	})

	BatchCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_batch_commit_latency_seconds",
		Help:    "Latency of batch upsert/delete commits",
		Buckets: prometheus.DefBuckets,
	})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_webhook_deliveries_total",
		Help: "Total number of webhook delivery attempts",
	}, []string{"event", "status"})

	WebhookDeliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_webhook_delivery_latency_seconds",
		Help:    "Latency of webhook HTTP deliveries",
		Buckets: prometheus.DefBuckets,
	})

	ProgressUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_progress_updates_total",
		Help: "Total number of progress snapshots published",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
