package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCaption("gemini", "ok", 120*time.Millisecond)
	m.ObserveCaption("gemini", "ok", 80*time.Millisecond)
	m.ObserveCaption("gemini", "blocked", 10*time.Millisecond)
	m.IncCaptionRetry()
	m.ObserveRun("completed", 2*time.Second)
	m.IncImage("duplicate", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.captionRequests.WithLabelValues("gemini", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captionRequests.WithLabelValues("gemini", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captionRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.images.WithLabelValues("duplicate", "ok")))

	count, err := testutil.GatherAndCount(reg, "alttext_caption_request_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCaption("gemini", "ok", time.Second)
		m.IncCaptionRetry()
		m.ObserveRun("failed", time.Second)
		m.IncImage("annotated", "failed")
	})
}
