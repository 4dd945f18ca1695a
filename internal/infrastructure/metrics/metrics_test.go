package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDiscoveryPublished("peripheral")
		m.RecordDiscoveryDuplicate()
		m.SetQueueDepth("sensor", 3)
		m.RecordDiscoveryProcessed("sensor", "created")
		m.RecordTelemetry("TWC_METER")
		m.RecordCallbackFailure("TWC_METER")
		m.RecordCommand("OPEN_CONTACTORS", "ok", time.Millisecond)
		m.AddEntities("sensor", 1)
		m.RecordEvent("mqtt", nil)
		m.RecordGatewayRestart()
	})
}

func TestRecorders(t *testing.T) {
	m := New("")

	m.RecordDiscoveryPublished("peripheral")
	m.RecordDiscoveryPublished("peripheral")
	m.RecordDiscoveryDuplicate()
	m.SetQueueDepth("number", 4)
	m.RecordCallbackFailure("TWC_STATUS")
	m.RecordCommand("SESSION_CURRENT", "timeout", 2*time.Second)
	m.AddEntities("sensor", 11)
	m.AddEntities("sensor", -1)
	m.RecordEvent("amqp", errors.New("closed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiscoveryPublished.WithLabelValues("peripheral")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryDuplicates))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.DiscoveryQueueDepth.WithLabelValues("number")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackFailures.WithLabelValues("TWC_STATUS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("SESSION_CURRENT", "timeout")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.EntitiesActive.WithLabelValues("sensor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("amqp", "error")))
}

func TestHandler(t *testing.T) {
	m := New("twctest")
	m.RecordGatewayRestart()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "twctest_gateway_restarts_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
