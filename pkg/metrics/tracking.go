package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TrackResultChanged   = "changed"
	TrackResultUnchanged = "unchanged"
	TrackResultFailed    = "failed"
)

// TrackingMetrics counts tracked products by outcome.
type TrackingMetrics struct {
	tracked *prometheus.CounterVec
}

func NewTrackingMetrics(reg prometheus.Registerer) *TrackingMetrics {
	if reg == nil {
		return &TrackingMetrics{}
	}
	tracked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "products_tracked_total",
		Help:      "Products tracked against their supplier, by result.",
	}, []string{"result"})
	reg.MustRegister(tracked)
	return &TrackingMetrics{tracked: tracked}
}

// Observe increments the counter for result.
func (m *TrackingMetrics) Observe(result string) {
	if m == nil || m.tracked == nil {
		return
	}
	m.tracked.WithLabelValues(normalizeLabel(result)).Inc()
}

// PolicyMetrics counts policy violations by policy name.
type PolicyMetrics struct {
	violations *prometheus.CounterVec
}

func NewPolicyMetrics(reg prometheus.Registerer) *PolicyMetrics {
	if reg == nil {
		return &PolicyMetrics{}
	}
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_violations_total",
		Help:      "Policy violations recorded as alerts.",
	}, []string{"policy"})
	reg.MustRegister(violations)
	return &PolicyMetrics{violations: violations}
}

// IncViolation increments the counter for policy.
func (m *PolicyMetrics) IncViolation(policy string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(policy)).Inc()
}

// JobMetrics counts queued jobs handled by the worker.
type JobMetrics struct {
	handled *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_handled_total",
		Help:      "Queued jobs handled by the worker, by kind and final status.",
	}, []string{"kind", "status"})
	reg.MustRegister(handled)
	return &JobMetrics{handled: handled}
}

// Observe increments the counter for kind and status.
func (m *JobMetrics) Observe(kind, status string) {
	if m == nil || m.handled == nil {
		return
	}
	m.handled.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
}
