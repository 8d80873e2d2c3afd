// Package metrics registers the Prometheus metrics used by the router.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completed requests labelled by endpoint, model,
	// and outcome ("success", "error", "blocked").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_requests_total",
			Help: "Total number of requests processed by the router.",
		},
		[]string{"endpoint", "model", "status"},
	)

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmrouter_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint", "model"},
	)

	// ProviderSelections counts strategy decisions.
	ProviderSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_provider_selections_total",
			Help: "Total provider selections by strategy.",
		},
		[]string{"strategy", "model", "provider"},
	)

	// ProviderErrors counts upstream failures by provider and reason
	// ("timeout", "http_error", "network", "bad_response").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_provider_errors_total",
			Help: "Total upstream provider errors by reason.",
		},
		[]string{"provider", "reason"},
	)

	// LockAcquisitions counts provider lock attempts by outcome
	// ("acquired", "busy", "store_error").
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_lock_acquisitions_total",
			Help: "Total provider lock acquisition attempts.",
		},
		[]string{"model", "outcome"},
	)

	// KeepAlivePings counts keep-alive probe results ("ok", "error").
	KeepAlivePings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_keepalive_pings_total",
			Help: "Total keep-alive pings sent to providers.",
		},
		[]string{"model", "host", "outcome"},
	)

	// StreamChunks counts relayed stream chunks by upstream dialect.
	StreamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_stream_chunks_total",
			Help: "Total stream chunks relayed to clients.",
		},
		[]string{"api_type"},
	)

	// GuardrailBlocks counts requests or responses stopped by a guardrail.
	GuardrailBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_guardrail_blocks_total",
			Help: "Total guardrail blocks by pipeline stage.",
		},
		[]string{"stage", "guardrail"},
	)
)
