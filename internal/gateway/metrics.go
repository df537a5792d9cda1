package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buildsense/schemer/internal/agent"
)

// Metrics tracks turn-level counters twice: atomics feed the /status
// snapshot, prometheus counters feed /metrics. It implements
// agent.Observer so the orchestrator reports directly into it.
type Metrics struct {
	turns        atomic.Int64
	toolCalls    atomic.Int64
	planFailures atomic.Int64
	memoryHits   atomic.Int64
	reaped       atomic.Int64

	registry          *prometheus.Registry
	turnsTotal        prometheus.Counter
	toolCallsTotal    *prometheus.CounterVec
	planFailuresTotal prometheus.Counter
	memoryHitsTotal   prometheus.Counter
	reapedTotal       prometheus.Counter
}

// Compile-time interface check.
var _ agent.Observer = (*Metrics)(nil)

// NewMetrics builds a collector with its own prometheus registry, so
// multiple gateways in one process (tests) never collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemer_turns_total",
			Help: "Completed conversation turns.",
		}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemer_tool_calls_total",
			Help: "Tool invocations by tool name.",
		}, []string{"tool"}),
		planFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemer_plan_failures_total",
			Help: "Turns answered with a degraded plan.",
		}),
		memoryHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemer_memory_hits_total",
			Help: "Repeated questions answered from session memory.",
		}),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemer_sessions_reaped_total",
			Help: "Idle sessions closed by the reaper.",
		}),
	}
	m.registry.MustRegister(m.turnsTotal, m.toolCallsTotal, m.planFailuresTotal, m.memoryHitsTotal, m.reapedTotal)
	return m
}

// TurnCompleted implements agent.Observer.
func (m *Metrics) TurnCompleted() {
	m.turns.Add(1)
	m.turnsTotal.Inc()
}

// ToolInvoked implements agent.Observer.
func (m *Metrics) ToolInvoked(name string) {
	m.toolCalls.Add(1)
	m.toolCallsTotal.WithLabelValues(name).Inc()
}

// PlanDegraded implements agent.Observer.
func (m *Metrics) PlanDegraded() {
	m.planFailures.Add(1)
	m.planFailuresTotal.Inc()
}

// MemoryHit implements agent.Observer.
func (m *Metrics) MemoryHit() {
	m.memoryHits.Add(1)
	m.memoryHitsTotal.Inc()
}

// SessionReaped records one idle session closed by the reaper.
func (m *Metrics) SessionReaped() {
	m.reaped.Add(1)
	m.reapedTotal.Inc()
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Turns:        m.turns.Load(),
		ToolCalls:    m.toolCalls.Load(),
		PlanFailures: m.planFailures.Load(),
		MemoryHits:   m.memoryHits.Load(),
		Reaped:       m.reaped.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Turns        int64 `json:"turns"`
	ToolCalls    int64 `json:"tool_calls"`
	PlanFailures int64 `json:"plan_failures"`
	MemoryHits   int64 `json:"memory_hits"`
	Reaped       int64 `json:"sessions_reaped"`
}

// Handler serves the prometheus exposition format for this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
