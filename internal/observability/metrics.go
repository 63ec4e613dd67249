package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics.
//
// Tracked concerns:
//   - Scan volume and solve pipeline latency
//   - Generation attempts per scan (retry pressure)
//   - Verification outcomes (pass|fail|indeterminate) and caution acceptances
//   - Quota admissions and rejections
//   - Background deep-evaluation completions
//   - LLM token consumption by provider and model
//   - HTTP request latency and counts
type Metrics struct {
	// ScanCounter counts solve requests by subject and status.
	// Labels: subject, status (ok|error)
	ScanCounter *prometheus.CounterVec

	// PipelineDuration measures end-to-end solve latency in seconds.
	// Labels: subject
	// Buckets: 0.5s .. 120s
	PipelineDuration *prometheus.HistogramVec

	// PipelineAttempts observes generation attempts used per solve (1-3).
	PipelineAttempts prometheus.Histogram

	// VerifyOutcomes counts verification results.
	// Labels: outcome (pass|fail|indeterminate)
	VerifyOutcomes *prometheus.CounterVec

	// CautionCounter counts solutions accepted with the caution flag set.
	CautionCounter prometheus.Counter

	// QuotaDecisions counts admission decisions.
	// Labels: kind (user|guest), decision (admitted|rejected)
	QuotaDecisions *prometheus.CounterVec

	// EvaluationCounter counts background deep evaluations.
	// Labels: status (ok|error)
	EvaluationCounter *prometheus.CounterVec

	// LLMTokens tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokens *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics registers all metrics with the default Prometheus registry.
// Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with the given registerer. Tests pass
// a fresh registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_scans_total",
				Help: "Total solve requests by subject and status",
			},
			[]string{"subject", "status"},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapsolve_pipeline_duration_seconds",
				Help:    "End-to-end solve pipeline latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"subject"},
		),

		PipelineAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapsolve_pipeline_attempts",
				Help:    "Generation attempts consumed per solve",
				Buckets: []float64{1, 2, 3},
			},
		),

		VerifyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_verify_outcomes_total",
				Help: "Quick verification results by outcome",
			},
			[]string{"outcome"},
		),

		CautionCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "snapsolve_caution_accepts_total",
				Help: "Solutions accepted with the caution flag after retries",
			},
		),

		QuotaDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_quota_decisions_total",
				Help: "Quota admission decisions by identity kind",
			},
			[]string{"kind", "decision"},
		),

		EvaluationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_evaluations_total",
				Help: "Background deep evaluations by status",
			},
			[]string{"status"},
		),

		LLMTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_llm_tokens_total",
				Help: "LLM tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapsolve_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapsolve_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}
