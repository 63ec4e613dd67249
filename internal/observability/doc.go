// Package observability provides the service's metrics and structured
// logging.
//
// Metrics are Prometheus collectors covering scan volume, pipeline latency
// and retry pressure, verification outcomes, quota decisions, background
// evaluations, token consumption, and HTTP traffic. They are exposed on the
// /metrics endpoint by the gateway.
//
// Logging is built on log/slog. Records pass through credential redaction
// so provider API keys and bearer tokens never reach log storage, in JSON
// for production or text for development.
//
//	metrics := observability.NewMetrics()
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
package observability
