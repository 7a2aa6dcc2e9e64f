// File: internal/observability/metrics.go
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus collectors for the agent. All recording methods
// are safe on a nil receiver, which disables collection.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive     prometheus.Gauge
	iterationsTotal    prometheus.Counter
	sessionOutcomes    *prometheus.CounterVec
	toolExecutions     *prometheus.CounterVec
	reasoningRequests  *prometheus.CounterVec
	reasoningDuration  *prometheus.HistogramVec
	automationRequests *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of operator connections with a live session.",
		}),
		iterationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Loop iterations started across all sessions.",
		}),
		sessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Finished tasks by outcome.",
		}, []string{"outcome"}),
		toolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Dispatched tool invocations by tool and result status.",
		}, []string{"tool", "status"}),
		reasoningRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_requests_total",
			Help:      "Reasoning backend calls by provider and status.",
		}, []string{"provider", "status"}),
		reasoningDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoning_request_duration_seconds",
			Help:      "Reasoning backend latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		automationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_requests_total",
			Help:      "Calls to the browser-automation service by operation and status.",
		}, []string{"operation", "status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) IterationStarted() {
	if m == nil {
		return
	}
	m.iterationsTotal.Inc()
}

// TaskFinished records how a task ended.
func (m *Metrics) TaskFinished(outcome string) {
	if m == nil {
		return
	}
	m.sessionOutcomes.WithLabelValues(outcome).Inc()
}

// ToolExecuted records one dispatcher result.
func (m *Metrics) ToolExecuted(tool, status string) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(tool, status).Inc()
}

// ReasoningCompleted records one reasoning backend call.
func (m *Metrics) ReasoningCompleted(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reasoningRequests.WithLabelValues(provider, statusLabel(err)).Inc()
	m.reasoningDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// AutomationCompleted records one call to the automation service.
func (m *Metrics) AutomationCompleted(operation string, err error) {
	if m == nil {
		return
	}
	m.automationRequests.WithLabelValues(operation, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
