// Package metrics exposes test run and tool call metrics for Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webpentest"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runsInFlight    prometheus.Gauge
	runDuration     *prometheus.HistogramVec
	findingsTotal   *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	toolCallSeconds *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_runs_total",
			Help:      "Test runs by final status.",
		},
		[]string{"status"},
	)
	m.runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "test_runs_in_flight",
		Help:      "Test runs currently executing.",
	})
	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_run_duration_seconds",
			Help:      "Wall time of finished test runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)
	m.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings recorded by severity.",
		},
		[]string{"severity"},
	)
	m.toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	m.toolCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	collectors := []prometheus.Collector{
		m.runsTotal,
		m.runsInFlight,
		m.runDuration,
		m.findingsTotal,
		m.toolCallsTotal,
		m.toolCallSeconds,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted marks a run as executing.
func (m *Metrics) RunStarted() {
	m.runsInFlight.Inc()
}

// RunFinished records the final status and duration of a run that started.
func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RunEnded counts a run that became final before it started executing.
func (m *Metrics) RunEnded(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// FindingRecorded counts a finding.
func (m *Metrics) FindingRecorded(severity string) {
	m.findingsTotal.WithLabelValues(severity).Inc()
}

// ObserveToolCall records one tool call.
func (m *Metrics) ObserveToolCall(tool string, ok bool, elapsed time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}
