// Package metrics defines the Prometheus collectors testpilot exports on
// /metrics. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "testpilot"

// Metrics holds the collectors.
type Metrics struct {
	// ActionsTotal counts dispatched actions.
	// Labels: action, status (success, failed, error, ...)
	ActionsTotal *prometheus.CounterVec

	// TestAttemptsTotal counts test runs, including fix loop retries.
	// Labels: status (success, failed, error)
	TestAttemptsTotal *prometheus.CounterVec

	// FixLoopOutcomesTotal counts finished fix loops.
	// Labels: outcome (passed, auto_fixed, exhausted)
	FixLoopOutcomesTotal *prometheus.CounterVec

	// TestDurationSeconds measures single test run wall time.
	TestDurationSeconds prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total dispatched actions by action name and result status",
			},
			[]string{"action", "status"},
		),
		TestAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_attempts_total",
				Help:      "Total test executions by result status",
			},
			[]string{"status"},
		),
		FixLoopOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fix_loop_outcomes_total",
				Help:      "Total fix loop runs by outcome",
			},
			[]string{"outcome"},
		),
		TestDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "test_duration_seconds",
				Help:      "Wall time of a single test execution in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

// ObserveAction records one dispatched action.
func (m *Metrics) ObserveAction(action, status string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, status).Inc()
}

// ObserveTest records one test execution.
func (m *Metrics) ObserveTest(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TestAttemptsTotal.WithLabelValues(status).Inc()
	m.TestDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveFixLoop records the outcome of a fix loop.
func (m *Metrics) ObserveFixLoop(outcome string) {
	if m == nil {
		return
	}
	m.FixLoopOutcomesTotal.WithLabelValues(outcome).Inc()
}
