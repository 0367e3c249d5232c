package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register with the default registry when the package is loaded,
// so every binary and test shares one set.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrape_queue_depth",
			Help: "Current number of envelopes held by the scrape queue.",
		},
		[]string{"queue"},
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_enqueued_total",
			Help: "Scrape job enqueue requests by outcome.",
		},
		[]string{"target_type", "result"}, // result: created, deduplicated, failed
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_processed_total",
			Help: "Scrape job attempts by outcome.",
		},
		[]string{"target_type", "outcome"}, // outcome: completed, retry, failed, skipped
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_job_duration_seconds",
			Help:    "Duration of scrape routine runs.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"target_type"},
	)

	BackgroundTriggerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_background_trigger_errors_total",
			Help: "Background refresh triggers that failed to enqueue.",
		},
		[]string{"operation"},
	)
)
