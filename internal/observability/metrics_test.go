package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunOutcomeCounter.WithLabelValues("done").Inc()
	m.ActiveRuns.Inc()
	m.ToolExecutionCounter.WithLabelValues("fetch_quote", "success").Inc()

	if got := testutil.ToFloat64(m.RunOutcomeCounter.WithLabelValues("done")); got != 1 {
		t.Errorf("RunOutcomeCounter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Errorf("ActiveRuns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("fetch_quote", "success")); got != 1 {
		t.Errorf("ToolExecutionCounter = %v, want 1", got)
	}
}

func TestNewMetricsSeparateRegistries(t *testing.T) {
	// The metrics set must be instantiable more than once for tests.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.ActiveRuns.Inc()
	if got := testutil.ToFloat64(b.ActiveRuns); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
}
