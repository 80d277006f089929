// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers inference latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// DispatchTotal counts dispatch attempts per service by outcome
	// (success, failure).
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelroute_dispatch_total",
			Help: "Backend dispatch attempts",
		},
		[]string{"service", "outcome"},
	)

	// FailoversTotal counts transitions to the next candidate after a
	// dispatch failure.
	FailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelroute_failovers_total",
			Help: "Failovers to the next candidate service",
		},
	)

	// RateLimitSkipsTotal counts candidates skipped for rate limiting.
	RateLimitSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelroute_ratelimit_skips_total",
			Help: "Candidates skipped because their window was exhausted",
		},
		[]string{"service"},
	)

	// DispatchDuration records backend round-trip latency in seconds.
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelroute_dispatch_duration_seconds",
			Help:    "Backend dispatch latency",
			Buckets: LLMBuckets,
		},
		[]string{"service"},
	)

	// StreamsActive tracks in-flight SSE streams.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelroute_streams_active",
			Help: "Active streaming responses",
		},
	)

	// AuthRequestsTotal counts authorization outcomes
	// (ok, missing, invalid).
	AuthRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelroute_auth_requests_total",
			Help: "Authorization attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TokensTotal counts tokens by service and direction (prompt,
	// completion). Estimated when the backend omits usage.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelroute_tokens_total",
			Help: "Token throughput",
		},
		[]string{"service", "direction"},
	)
)

func init() {
	prometheus.MustRegister(
		DispatchTotal,
		FailoversTotal,
		RateLimitSkipsTotal,
		DispatchDuration,
		StreamsActive,
		AuthRequestsTotal,
		TokensTotal,
	)
}
