package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the orchestrator, executor, and
// script queue publish to. Grounded on the teacher's
// internal/observability/metrics.go (CounterVec/HistogramVec/GaugeVec
// registered once and passed down rather than referenced through package
// globals).
type Metrics struct {
	Turns                  prometheus.Counter
	ModelCallDuration      prometheus.Histogram
	ToolDuration           *prometheus.HistogramVec
	ToolValidationFailures *prometheus.CounterVec
	ActiveConversations    prometheus.Gauge
	ScriptQueueDepth       prometheus.Gauge
	LoopDetections         prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden", Subsystem: "orchestrator", Name: "turns_total",
			Help: "Total agent-loop turns executed.",
		}),
		ModelCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warden", Subsystem: "model_client", Name: "call_duration_seconds",
			Help: "Duration of a single streaming model call.", Buckets: prometheus.DefBuckets,
		}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "warden", Subsystem: "executor", Name: "tool_duration_seconds",
			Help: "Duration of a single tool execution.", Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ToolValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden", Subsystem: "executor", Name: "tool_validation_failures_total",
			Help: "Tool calls rejected by input validation.",
		}, []string{"tool"}),
		ActiveConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden", Subsystem: "orchestrator", Name: "active_conversations",
			Help: "Conversations currently in the streaming state.",
		}),
		ScriptQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden", Subsystem: "script_queue", Name: "pending_depth",
			Help: "Pending executions awaiting a runner result.",
		}),
		LoopDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden", Subsystem: "orchestrator", Name: "loop_detections_total",
			Help: "Conversations terminated by the loop-detection rule.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Turns, m.ModelCallDuration, m.ToolDuration, m.ToolValidationFailures,
		m.ActiveConversations, m.ScriptQueueDepth, m.LoopDetections,
	} {
		reg.MustRegister(c)
	}
	return m
}
