// Package metrics exposes lab activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "benchlab"

// Operation outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeBusy       = "busy"
	OutcomeToolFailed = "tool_failed"
	OutcomeExpired    = "expired"
	OutcomeError      = "error"
)

// Metrics holds the collectors of one lab session. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	boardState *prometheus.GaugeVec
	cleanups   *prometheus.CounterVec
}

// New registers the lab collectors on a fresh registry. remaining reports
// the seconds left in the session; it may be nil.
func New(remaining func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Board operations by board, operation and outcome.",
		}, []string{"board", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of board operations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"board", "op"}),
		boardState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "board_state",
			Help:      "Current operation state per board (1 for the active state).",
		}, []string{"board", "state"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_passes_total",
			Help:      "Stop firmware passes by pass and outcome.",
		}, []string{"pass", "outcome"}),
	}
	reg.MustRegister(
		m.operations, m.duration, m.boardState, m.cleanups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if remaining != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_remaining_seconds",
			Help:      "Seconds until the effective end of the session.",
		}, remaining))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation counts one finished operation.
func (m *Metrics) ObserveOperation(board, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(board, op, outcome).Inc()
	if d > 0 {
		m.duration.WithLabelValues(board, op).Observe(d.Seconds())
	}
}

// SetBoardState marks state as the active state of board. states lists
// every state name so the others are reset to zero.
func (m *Metrics) SetBoardState(board, state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.boardState.WithLabelValues(board, s).Set(v)
	}
}

// ObserveCleanup counts one cleanup pass.
func (m *Metrics) ObserveCleanup(pass, outcome string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(pass, outcome).Inc()
}
