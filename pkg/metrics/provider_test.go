package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestProviderCallMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewProviderCallMetrics(reg)
	metrics.Observe("fivesim", "check_status", "ok", 120*time.Millisecond)
	metrics.Observe("fivesim", "check_status", "ok", 80*time.Millisecond)
	metrics.Observe("fivesim", "check_status", "unreachable", 30*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "provider_calls_total", "outcome", "ok"); err != nil {
		t.Fatalf("fetch ok counter: %v", err)
	} else if got != 2 {
		t.Fatalf("expected ok=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "provider_calls_total", "outcome", "unreachable"); err != nil {
		t.Fatalf("fetch unreachable counter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unreachable=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "provider_call_duration_seconds", "provider", "fivesim"); err != nil {
		t.Fatalf("fetch latency: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}
}

func TestProviderCallMetricsNilSafe(t *testing.T) {
	var metrics *ProviderCallMetrics
	metrics.Observe("fivesim", "balance", "ok", time.Second)

	empty := NewProviderCallMetrics(nil)
	empty.Observe("fivesim", "balance", "ok", time.Second)
}
