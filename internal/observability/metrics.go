// Package observability provides Prometheus metrics for the Finsight runtime.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
type Metrics struct {
	// ModelRequestDuration measures model API call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model requests.
	// Labels: provider, model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts capability invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures capability execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveRuns is a gauge tracking runs currently in the supervisor table.
	ActiveRuns prometheus.Gauge

	// RunOutcomeCounter counts terminal run outcomes.
	// Labels: outcome (done|error|cancelled)
	RunOutcomeCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the given registerer.
// Passing nil registers on the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ModelRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "model",
			Name:      "request_duration_seconds",
			Help:      "Model API call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		ModelRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "model",
			Name:      "requests_total",
			Help:      "Model API calls by outcome.",
		}, []string{"provider", "model", "status"}),

		ModelTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Token consumption by type.",
		}, []string{"provider", "model", "type"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Capability invocations by outcome.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "tools",
			Name:      "execution_duration_seconds",
			Help:      "Capability execution time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "finsight",
			Subsystem: "runs",
			Name:      "active",
			Help:      "Runs currently registered in the supervisor table.",
		}),

		RunOutcomeCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "runs",
			Name:      "outcomes_total",
			Help:      "Terminal run outcomes.",
		}, []string{"outcome"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
	}
}
