// Package metrics provides Prometheus collectors for the acquisition pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceRequestsTotal tracks outbound requests per source and status code.
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "editais",
			Subsystem: "source",
			Name:      "requests_total",
			Help:      "Total number of outbound source requests by status",
		},
		[]string{"source", "status"},
	)

	// SourceRequestDuration tracks outbound request latency.
	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "editais",
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound source requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// SourceRetriesTotal counts retried attempts.
	SourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "editais",
			Subsystem: "source",
			Name:      "retries_total",
			Help:      "Total number of retried source requests",
		},
		[]string{"source"},
	)

	// AuthenticationsTotal counts session establishment attempts.
	AuthenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "editais",
			Subsystem: "auth",
			Name:      "sessions_total",
			Help:      "Total number of session establishments by result",
		},
		[]string{"source", "result"},
	)

	// NoticesTotal tracks resolver outcomes per source.
	NoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "editais",
			Subsystem: "capture",
			Name:      "notices_total",
			Help:      "Total number of processed notices by outcome",
		},
		[]string{"source", "outcome"},
	)

	// RunsTotal tracks acquisition runs.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "editais",
			Subsystem: "capture",
			Name:      "runs_total",
			Help:      "Total number of acquisition runs by result",
		},
		[]string{"result"},
	)

	// RunDuration tracks acquisition run duration.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "editais",
			Subsystem: "capture",
			Name:      "run_duration_seconds",
			Help:      "Duration of acquisition runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 300, 600},
		},
	)
)

// ObserveRequest records one outbound attempt. status 0 means a transport error.
func ObserveRequest(source string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	SourceRequestsTotal.WithLabelValues(source, label).Inc()
	SourceRequestDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}
