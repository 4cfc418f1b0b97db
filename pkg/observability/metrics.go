// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the reagent service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reagent_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// RunsTotal counts controller runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_runs_total",
			Help: "Controller runs by terminal status",
		},
		[]string{"status"},
	)

	// LoopIterations records how many reason-act iterations each run took.
	LoopIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reagent_loop_iterations",
			Help:    "Reason-act iterations per run",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	// OracleRequestsTotal counts oracle turns by outcome.
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_oracle_requests_total",
			Help: "Oracle requests",
		},
		[]string{"model", "status"},
	)

	// OracleLatency records oracle turn latency in seconds.
	OracleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reagent_oracle_latency_seconds",
			Help:    "Oracle latency",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// OracleRetriesTotal counts oracle retries after transient failures.
	OracleRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reagent_oracle_retries_total",
			Help: "Oracle retries",
		},
	)

	// OracleTokensTotal counts tokens processed by direction (input/output).
	OracleTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_oracle_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// ToolExecutionsTotal counts tool dispatches by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolDuration records tool dispatch duration in seconds by name.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reagent_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: LLMBuckets,
		},
		[]string{"tool_name"},
	)

	// SessionsActive tracks the number of live sessions.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reagent_sessions_active",
			Help: "Active sessions",
		},
	)

	// SandboxProvisionsTotal counts sandbox provisioning attempts by outcome.
	SandboxProvisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_sandbox_provisions_total",
			Help: "Sandbox provisioning attempts",
		},
		[]string{"status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reagent_rate_limit_rejected_total",
			Help: "Requests rejected due to rate limiting",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		RunsTotal,
		LoopIterations,
		OracleRequestsTotal,
		OracleLatency,
		OracleRetriesTotal,
		OracleTokensTotal,
		ToolExecutionsTotal,
		ToolDuration,
		SessionsActive,
		SandboxProvisionsTotal,
		RateLimitRejectedTotal,
	)
}
