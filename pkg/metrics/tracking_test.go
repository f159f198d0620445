package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTrackingMetricsCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrackingMetrics(reg)
	m.Observe(TrackResultChanged)
	m.Observe(TrackResultChanged)
	m.Observe(TrackResultFailed)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "dropship_products_tracked_total", "result", TrackResultChanged); err != nil || got != 2 {
		t.Fatalf("expected changed=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "dropship_products_tracked_total", "result", TrackResultFailed); err != nil || got != 1 {
		t.Fatalf("expected failed=1, got %f (%v)", got, err)
	}
}

func TestPolicyAndJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	policy := NewPolicyMetrics(reg)
	jobs := NewJobMetrics(reg)
	policy.IncViolation("low_stock")
	jobs.Observe("track_product", "SUCCESS")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "dropship_policy_violations_total", "policy", "low_stock"); err != nil || got != 1 {
		t.Fatalf("expected low_stock=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "dropship_jobs_handled_total", "kind", "track_product"); err != nil || got != 1 {
		t.Fatalf("expected track_product=1, got %f (%v)", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewTrackingMetrics(nil).Observe(TrackResultChanged)
	NewPolicyMetrics(nil).IncViolation("low_margin")
	NewJobMetrics(nil).Observe("sync_listing", "FAILED")
	var m *TrackingMetrics
	m.Observe(TrackResultFailed)
}
