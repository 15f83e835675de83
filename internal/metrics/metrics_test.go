package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStateGauge(t *testing.T) {
	m := NewMetrics()

	m.ConnectionStateChanged("", "Connecting")
	m.ConnectionStateChanged("Connecting", "Idle")
	m.ConnectionStateChanged("Idle", "Running")

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionStates.WithLabelValues("Connecting")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionStates.WithLabelValues("Idle")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionStates.WithLabelValues("Running")))

	m.ConnectionStateChanged("Running", "")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionStates.WithLabelValues("Running")))
}

func TestTaskCounters(t *testing.T) {
	m := NewMetrics()

	m.TaskStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksRunning))

	m.TaskFinished("Succeeded", time.Now().Add(-time.Second))
	m.TaskFinished("Cancelled", time.Time{})

	assert.Equal(t, float64(0), testutil.ToFloat64(m.TasksRunning))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksFinished.WithLabelValues("Succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksFinished.WithLabelValues("Cancelled")))

	m.TaskAbandoned()
	m.TaskAbandoned()
	m.TaskReclaimed()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksAbandoned))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LineAcked()
		m.JobFinished("Completed")
		m.ConnectionStateChanged("", "Idle")
		m.EventPublished("JobProgress")
		m.ClientDropped()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.LineAcked()
	m.EventPublished("JobProgress")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "cnc_job_lines_acked_total 1"))
	assert.True(t, strings.Contains(body, `cnc_bus_events_published_total{type="JobProgress"} 1`))
}
