// Package metrics exposes Prometheus instrumentation for runs and caption calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alttext"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	captionRequests *prometheus.CounterVec
	captionLatency  *prometheus.HistogramVec
	captionRetries  prometheus.Counter
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	images          *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		captionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "caption",
			Name:      "requests_total",
			Help:      "Caption backend requests by outcome.",
		}, []string{"backend", "outcome"}),
		captionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "caption",
			Name:      "request_duration_seconds",
			Help:      "Caption backend request latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"backend"}),
		captionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "caption",
			Name:      "retries_total",
			Help:      "Caption attempts retried after a transient failure.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal result.",
		}, []string{"result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		images: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "images_total",
			Help:      "Extracted images by disposition and status.",
		}, []string{"disposition", "status"}),
	}
}

// ObserveCaption records one backend request.
func (m *Metrics) ObserveCaption(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.captionRequests.WithLabelValues(backend, outcome).Inc()
	m.captionLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// IncCaptionRetry records a retried attempt.
func (m *Metrics) IncCaptionRetry() {
	if m == nil {
		return
	}
	m.captionRetries.Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}

// IncImage records an image outcome. disposition is "annotated" or "duplicate".
func (m *Metrics) IncImage(disposition, status string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(disposition, status).Inc()
}
