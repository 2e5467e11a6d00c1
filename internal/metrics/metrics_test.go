package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGateOutcomeIncrementsCounter(t *testing.T) {
	m := New()
	m.ObserveGateOutcome("rejected", "G5_PLAN_AUTHORITY", "PLAN_OUT_OF_SCOPE")

	got := testutil.ToFloat64(m.GateOutcomes.WithLabelValues("rejected", "G5_PLAN_AUTHORITY", "PLAN_OUT_OF_SCOPE"))
	if got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestObserveReplayFindingIncrementsCounter(t *testing.T) {
	m := New()
	m.ObserveReplayFinding("TAMPER_DETECTED_BROKEN_HASH_CHAIN")
	m.ObserveReplayFinding("TAMPER_DETECTED_BROKEN_HASH_CHAIN")

	got := testutil.ToFloat64(m.ReplayFindings.WithLabelValues("TAMPER_DETECTED_BROKEN_HASH_CHAIN"))
	if got != 2 {
		t.Fatalf("expected counter value 2, got %v", got)
	}
}

func TestGathererExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveAuditAppend(0.01)

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestNilRegistryObserveIsNoop(t *testing.T) {
	var m *Registry
	m.ObserveGateOutcome("accepted", "", "")
	m.ObservePreflight(true, 0.1)
	m.ObserveAuditAppend(0.01)
	m.ObserveReplayFinding("TAMPER_DETECTED_SEQ_GAP")
}
