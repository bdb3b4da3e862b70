package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support_management",
			Name:      "worker_runs_total",
			Help:      "Total number of worker runs.",
		},
		[]string{"worker", "status"}, // status: "success", "error_fetch_batch"
	)

	itemsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support_management",
			Name:      "worker_items_processed_total",
			Help:      "Total number of items processed by ingestion workers.",
		},
		[]string{"worker", "status"}, // status: "success", "skipped", "duplicate", "error"
	)

	workerRunDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "support_management",
			Name:      "worker_run_duration_seconds",
			Help:      "Duration of one worker run.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	errandsReactivatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "support_management",
			Name:      "errands_reactivated_total",
			Help:      "Total number of SOLVED errands reactivated by inbound traffic.",
		},
		[]string{"channel"}, // "EMAIL", "WEB_MESSAGE"
	)

	closingNoticesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "support_management",
			Name:      "closing_notices_sent_total",
			Help:      "Total number of closing notices sent for stale solved errands.",
		},
	)
)
