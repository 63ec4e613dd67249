package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetricsWith(registry)

	metrics.ScanCounter.WithLabelValues("math", "ok").Inc()
	metrics.ScanCounter.WithLabelValues("math", "ok").Inc()
	metrics.VerifyOutcomes.WithLabelValues("pass").Inc()
	metrics.QuotaDecisions.WithLabelValues("guest", "rejected").Inc()
	metrics.LLMTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "prompt").Add(120)

	if got := testutil.ToFloat64(metrics.ScanCounter.WithLabelValues("math", "ok")); got != 2 {
		t.Errorf("scan counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.VerifyOutcomes.WithLabelValues("pass")); got != 1 {
		t.Errorf("verify outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.QuotaDecisions.WithLabelValues("guest", "rejected")); got != 1 {
		t.Errorf("quota decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.LLMTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "prompt")); got != 120 {
		t.Errorf("llm tokens = %v, want 120", got)
	}
}

func TestMetrics_SeparateRegistriesDoNotCollide(t *testing.T) {
	// Two instances must be registrable side by side for tests.
	NewMetricsWith(prometheus.NewRegistry())
	NewMetricsWith(prometheus.NewRegistry())
}
