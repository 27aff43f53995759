// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the bridge.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets defines histogram buckets suited for chat completion
// latencies, ranging from 100ms to 120s.
var LatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Stream outcomes recorded in StreamOutcomesTotal.
const (
	OutcomeCompleted    = "completed"
	OutcomeFailedDecode = "failed_decode"
	OutcomeFailedRead   = "failed_read"
	OutcomeFailedWrite  = "failed_write"
)

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of streams being relayed.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamRequestsTotal counts requests sent to the upstream by status
	// code, or "error" when it could not be reached.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"provider", "model", "status"},
	)

	// UpstreamLatency records the time until upstream response headers arrive.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	// TokensTotal counts tokens reported by the upstream by direction
	// (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// RelayedChunksTotal counts chunks written to streaming clients.
	RelayedChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relayed_chunks_total",
			Help: "Stream chunks relayed",
		},
		[]string{"model"},
	)

	// StreamOutcomesTotal counts how relayed streams ended.
	StreamOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_stream_outcomes_total",
			Help: "Stream outcomes",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"backend"},
	)

	// UsageRecordErrorsTotal counts usage records the ledger failed to store.
	UsageRecordErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_usage_record_errors_total",
			Help: "Usage ledger write failures",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamRequestsTotal,
		UpstreamLatency,
		TokensTotal,
		RelayedChunksTotal,
		StreamOutcomesTotal,
		RateLimitRejectedTotal,
		UsageRecordErrorsTotal,
	)
}

// Handler returns the Prometheus exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
