// Package metrics exposes the order integration counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	exportsTotal        *prometheus.CounterVec
	identifierFallbacks prometheus.Counter
	syncRunsTotal       *prometheus.CounterVec
	syncSyncedTotal     prometheus.Counter
	syncDuration        prometheus.Histogram
	lockEventsTotal     *prometheus.CounterVec
	realtimeDropped     prometheus.Counter
	realtimeClients     prometheus.Gauge
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "orderbridge"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_exports_total",
		Help:      "Orders pushed to the external ledger, by result.",
	}, []string{"result"})
	m.identifierFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_identifier_fallbacks_total",
		Help:      "External order numbers derived from the clock instead of the sequence.",
	})
	m.syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Reconciliation runs, by status.",
	}, []string{"status"})
	m.syncSyncedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_synced_total",
		Help:      "Orders updated from ledger documents.",
	})
	m.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of reconciliation runs.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})
	m.lockEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edit_lock_events_total",
		Help:      "Edit lock transitions, by action.",
	}, []string{"action"})
	m.realtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_dropped_total",
		Help:      "Real-time events dropped because a client buffer was full.",
	})
	m.realtimeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_clients",
		Help:      "Connected real-time clients on this process.",
	})

	m.registry.MustRegister(
		m.exportsTotal, m.identifierFallbacks, m.syncRunsTotal, m.syncSyncedTotal, m.syncDuration,
		m.lockEventsTotal, m.realtimeDropped, m.realtimeClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveExport(success bool) {
	if m == nil {
		return
	}
	if success {
		m.exportsTotal.WithLabelValues(ResultSuccess).Inc()
		return
	}
	m.exportsTotal.WithLabelValues(ResultFailure).Inc()
}

func (m *Metrics) IdentifierFallback() {
	if m == nil {
		return
	}
	m.identifierFallbacks.Inc()
}

func (m *Metrics) ObserveSync(status string, synced int, took time.Duration) {
	if m == nil {
		return
	}
	m.syncRunsTotal.WithLabelValues(status).Inc()
	m.syncSyncedTotal.Add(float64(synced))
	m.syncDuration.Observe(took.Seconds())
}

func (m *Metrics) LockEvent(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lockEventsTotal.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) RealtimeDropped() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}

func (m *Metrics) RealtimeClients(delta float64) {
	if m == nil {
		return
	}
	m.realtimeClients.Add(delta)
}
