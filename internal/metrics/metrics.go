// Package metrics exposes Prometheus collectors for dialog turns, tool calls,
// agent transitions and memory writes. A nil *Collectors is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripdesk"

// Turn outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeFallback   = "fallback"
	OutcomeError      = "error"
	OutcomeTimeout    = "timeout"
	OutcomeRouteError = "route_error"
)

// Collectors groups every tripdesk metric on its own registry.
type Collectors struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	invokerRetries *prometheus.CounterVec
	ignoredCalls   *prometheus.CounterVec
	memoriesStored prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a conversation turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Domain tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_transitions_total",
			Help:      "Dialog stack pushes and pops by target agent.",
		}, []string{"kind", "agent"}),
		invokerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoker_retries_total",
			Help:      "Model calls repeated after an empty response.",
		}, []string{"agent"}),
		ignoredCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_tool_calls_total",
			Help:      "Tool calls beyond the first in a batch, answered without execution.",
		}, []string{"agent"}),
		memoriesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_stored_total",
			Help:      "Recall memories persisted.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.turns, c.turnDuration, c.toolCalls, c.transitions,
		c.invokerRetries, c.ignoredCalls, c.memoriesStored,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Turn records a finished turn.
func (c *Collectors) Turn(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
	c.turnDuration.Observe(d.Seconds())
}

// ToolCall records a domain tool execution. outcome is "ok" or "error".
func (c *Collectors) ToolCall(tool, outcome string) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Transition records a push ("transfer") or pop ("escalate").
func (c *Collectors) Transition(kind, agent string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(kind, agent).Inc()
}

// InvokerRetry records one retry after an empty model response.
func (c *Collectors) InvokerRetry(agent string) {
	if c == nil {
		return
	}
	c.invokerRetries.WithLabelValues(agent).Inc()
}

// IgnoredToolCalls records n unexecuted extra calls.
func (c *Collectors) IgnoredToolCalls(agent string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ignoredCalls.WithLabelValues(agent).Add(float64(n))
}

// MemoryStored records one persisted recall memory.
func (c *Collectors) MemoryStored() {
	if c == nil {
		return
	}
	c.memoriesStored.Inc()
}
