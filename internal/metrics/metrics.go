package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosspost_jobs_submitted_total",
		Help: "Total number of publish jobs submitted",
	})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosspost_jobs_finished_total",
		Help: "Total number of publish jobs that reached a terminal status",
	}, []string{"status"})

	PlatformPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosspost_platform_publishes_total",
		Help: "Per-platform publish attempts by outcome",
	}, []string{"platform", "outcome"})

	PlatformPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crosspost_platform_publish_duration_seconds",
		Help:    "Time taken for one platform publish attempt in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"platform"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosspost_active_workers",
		Help: "Current number of job workers",
	})
)
