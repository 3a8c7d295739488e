package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderCallMetrics records telemetry for outbound vendor API calls.
type ProviderCallMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewProviderCallMetrics registers the vendor call metrics on the provided registerer.
func NewProviderCallMetrics(reg prometheus.Registerer) *ProviderCallMetrics {
	if reg == nil {
		return &ProviderCallMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Outbound vendor API calls by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_call_duration_seconds",
		Help:    "Latency of vendor API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	reg.MustRegister(calls, latency)
	return &ProviderCallMetrics{calls: calls, latency: latency}
}

// Observe records one vendor call.
func (p *ProviderCallMetrics) Observe(provider, operation, outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	if p.calls != nil {
		p.calls.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	}
	if p.latency != nil {
		p.latency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
	}
}
