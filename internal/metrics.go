package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dispatch"

// Metrics holds the Prometheus collectors updated by the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// lifecycle graph
	Nodes prometheus.Gauge

	// signals
	Deliveries prometheus.Counter

	// reducers
	Executions      *prometheus.CounterVec
	StaleExecutions prometheus.Counter
	TimedStops      prometheus.Counter
	Panics          prometheus.Counter

	// notify registries
	Notifications prometheus.Counter
}

// NewMetrics registers the engine collectors with reg. A nil reg builds
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "lifecycle_nodes",
			Help:      "Number of live nodes in the lifecycle graph",
		}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signal_deliveries_total",
			Help:      "Total number of values delivered to signal observers",
		}),
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reducer_executions_total",
			Help:      "Total number of reducer executions by mode",
		}, []string{"mode"}),
		StaleExecutions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reducer_stale_executions_total",
			Help:      "Async reducer results dropped because a newer execution superseded them",
		}),
		TimedStops: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reducer_timed_stops_total",
			Help:      "Timed reducer loops stopped because their director became unavailable",
		}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reducer_panics_total",
			Help:      "Reducer executions that panicked",
		}),
		Notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notify_fired_total",
			Help:      "Total number of notify callbacks fired",
		}),
	}
}

func (m *Metrics) setNodes(n int) {
	if m == nil {
		return
	}
	m.Nodes.Set(float64(n))
}

func (m *Metrics) delivered() {
	if m == nil {
		return
	}
	m.Deliveries.Inc()
}

func (m *Metrics) executed(mode string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(mode).Inc()
}

func (m *Metrics) stale() {
	if m == nil {
		return
	}
	m.StaleExecutions.Inc()
}

func (m *Metrics) timedStopped() {
	if m == nil {
		return
	}
	m.TimedStops.Inc()
}

func (m *Metrics) panicked() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

func (m *Metrics) notified(n int) {
	if m == nil {
		return
	}
	m.Notifications.Add(float64(n))
}
