package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration is the standard per-request histogram recorded by the
// httpserver.Metrics middleware.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "identity",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// TokensIssuedTotal counts access/refresh/app token issuance by type.
var TokensIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "token",
		Name:      "issued_total",
		Help:      "Total number of tokens issued, by type.",
	},
	[]string{"type"},
)

// TokensBlacklistedTotal counts access tokens blacklisted on logout/revoke.
var TokensBlacklistedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "token",
		Name:      "blacklisted_total",
		Help:      "Total number of access tokens blacklisted.",
	},
)

// CapabilityChecksTotal counts authz decisions by outcome.
var CapabilityChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "authz",
		Name:      "capability_checks_total",
		Help:      "Total number of capability checks, by outcome.",
	},
	[]string{"outcome"},
)

// SignatureVerificationsTotal counts S2S signature verification outcomes.
var SignatureVerificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "signature",
		Name:      "verifications_total",
		Help:      "Total number of inbound signature verifications, by outcome.",
	},
	[]string{"outcome"},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the rate limiter, by bucket.",
	},
	[]string{"bucket"},
)

// All returns every identity-service metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		TokensIssuedTotal,
		TokensBlacklistedTotal,
		CapabilityChecksTotal,
		SignatureVerificationsTotal,
		RateLimitRejectionsTotal,
	}
}

// NewMetricsRegistry builds the process metrics registry: Go runtime and
// process collectors plus every identity-service metric.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(All()...)
	return reg
}
