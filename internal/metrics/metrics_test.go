package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("")

	m.ObserveExport(true)
	m.ObserveExport(true)
	m.ObserveExport(false)
	m.ObserveSync("PARTIAL", 3, 2*time.Second)
	m.LockEvent("expired", 2)
	m.LockEvent("expired", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("PARTIAL")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.syncSyncedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lockEventsTotal.WithLabelValues("expired")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExport(true)
		m.IdentifierFallback()
		m.ObserveSync("SUCCESS", 1, time.Second)
		m.LockEvent("acquired", 1)
		m.RealtimeDropped()
		m.RealtimeClients(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("orderbridge")
	m.ObserveExport(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `orderbridge_ledger_exports_total{result="success"} 1`))
}
