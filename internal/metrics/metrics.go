// Package metrics holds the in-process Prometheus registry for gate
// outcomes, preflight duration, and audit append latency. The registry
// itself never opens a listener; exposing it over HTTP is a concern of
// cmd/gatekeeper's serve leaf (spec §6, SPEC_FULL.md domain-stack table).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the gatekeeper process's metric instruments behind a
// private prometheus.Registry, so a host command can choose whether (and
// how) to expose them without the core depending on any transport.
type Registry struct {
	reg *prometheus.Registry

	GateOutcomes       *prometheus.CounterVec
	PreflightDuration  *prometheus.HistogramVec
	AuditAppendLatency prometheus.Histogram
	ReplayFindings     *prometheus.CounterVec
}

// New builds a Registry with every instrument registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		GateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "gate",
			Name:      "outcomes_total",
			Help:      "Count of admission pipeline outcomes by status and rejecting gate.",
		}, []string{"status", "gate", "error_code"}),
		PreflightDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatekeeper",
			Subsystem: "preflight",
			Name:      "duration_seconds",
			Help:      "Preflight command wall-clock duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		AuditAppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekeeper",
			Subsystem: "audit",
			Name:      "append_latency_seconds",
			Help:      "Latency of a single audit log append, including flock acquisition and fsync.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReplayFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "replay",
			Name:      "findings_total",
			Help:      "Count of findings surfaced by verify/replay passes, by finding kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.GateOutcomes, m.PreflightDuration, m.AuditAppendLatency, m.ReplayFindings)
	return m
}

// Gatherer exposes the underlying prometheus.Gatherer for a host command to
// wire into promhttp.HandlerFor, without leaking the concrete registry type.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// ObservePreflight records a preflight run's outcome and duration. A nil
// Registry is a no-op, so callers that run without metrics configured
// (tests, one-shot CLI commands that choose not to wire a Registry) never
// need a guard at the call site.
func (m *Registry) ObservePreflight(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.PreflightDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// ObserveGateOutcome records one admission pipeline result. Nil-safe; see
// ObservePreflight.
func (m *Registry) ObserveGateOutcome(status, gate, errorCode string) {
	if m == nil {
		return
	}
	m.GateOutcomes.WithLabelValues(status, gate, errorCode).Inc()
}

// ObserveAuditAppend records how long a single audit append took.
// Nil-safe; see ObservePreflight.
func (m *Registry) ObserveAuditAppend(durationSeconds float64) {
	if m == nil {
		return
	}
	m.AuditAppendLatency.Observe(durationSeconds)
}

// ObserveReplayFinding increments the counter for one replay/verify
// finding kind. Nil-safe; see ObservePreflight.
func (m *Registry) ObserveReplayFinding(kind string) {
	if m == nil {
		return
	}
	m.ReplayFindings.WithLabelValues(kind).Inc()
}
