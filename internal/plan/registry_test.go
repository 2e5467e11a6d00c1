package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

func approvedPlan(purpose string) []byte {
	doc := "---\n" +
		"status: APPROVED\n" +
		"scope:\n  - \"internal/**\"\n" +
		"version: \"1\"\n" +
		"created_at: 2026-01-01T00:00:00Z\n" +
		"purpose: \"" + purpose + "\"\n" +
		"---\n" +
		"Body.\n"
	return []byte(doc)
}

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, ".gatekeeper"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	r := openTestRegistry(t)
	s := r.State()
	if !s.BootstrapEnabled {
		t.Fatal("expected bootstrap_enabled=true by default")
	}
	if s.ApprovedPlansCount != 0 {
		t.Fatal("expected zero approved plans by default")
	}
}

func TestRegisterRefusesBeforeBootstrap(t *testing.T) {
	r := openTestRegistry(t)
	_, err := r.Register(approvedPlan("first"))
	if !gkerrors.Is(err, gkerrors.CodeBootstrapDisabled) {
		t.Fatalf("expected CodeBootstrapDisabled, got %v", err)
	}
}

func TestCompleteBootstrapThenRegisterSecond(t *testing.T) {
	r := openTestRegistry(t)
	first, err := r.CompleteBootstrap(approvedPlan("first"))
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	second, err := r.Register(approvedPlan("second"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected distinct hashes for distinct content")
	}

	lr := r.Lookup(second.Hash)
	if !lr.Hit {
		t.Fatalf("expected lookup hit, got reason %v", lr.Reason)
	}
}

func TestCompleteBootstrapRejectsRepeatOfIdenticalContent(t *testing.T) {
	r := openTestRegistry(t)
	content := approvedPlan("first")
	if _, err := r.CompleteBootstrap(content); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if r.State().ApprovedPlansCount != 1 {
		t.Fatal("expected count 1 after first bootstrap")
	}
	// bootstrap_enabled is gone regardless of what the second attempt
	// proposes, even a byte-identical repeat of the plan that already
	// completed bootstrap: there is no mechanism to re-enable it.
	if _, err := r.CompleteBootstrap(content); !gkerrors.Is(err, gkerrors.CodeBootstrapDisabled) {
		t.Fatalf("expected CodeBootstrapDisabled on repeat, got %v", err)
	}
	if r.State().ApprovedPlansCount != 1 {
		t.Fatal("expected count unchanged after rejected repeat")
	}
}

func TestCompleteBootstrapCannotReenable(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.CompleteBootstrap(approvedPlan("first")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := r.CompleteBootstrap(approvedPlan("different")); !gkerrors.Is(err, gkerrors.CodeBootstrapDisabled) {
		t.Fatalf("expected CodeBootstrapDisabled for distinct content after disable, got %v", err)
	}
}

func TestLookupMissNotIndexed(t *testing.T) {
	r := openTestRegistry(t)
	lr := r.Lookup("deadbeef")
	if lr.Hit || lr.Reason != MissNotIndexed {
		t.Fatalf("expected MissNotIndexed, got %+v", lr)
	}
}

func TestRegisterDuplicateHashRejected(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.CompleteBootstrap(approvedPlan("first")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	content := approvedPlan("second")
	if _, err := r.Register(content); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register(content); !gkerrors.Is(err, gkerrors.CodePlanAlreadyRegistered) {
		t.Fatalf("expected CodePlanAlreadyRegistered, got %v", err)
	}
}

func TestReconcileAutoAddsUnindexedFile(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.CompleteBootstrap(approvedPlan("first")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	content := approvedPlan("manually dropped")
	hash := Hash(content)
	path := filepath.Join(r.plansDir, FileName(hash))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}

	report, err := r.Reconcile()
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.AutoAdded) != 1 {
		t.Fatalf("expected one auto-added file, got %+v", report)
	}

	lr := r.Lookup(hash)
	if !lr.Hit {
		t.Fatalf("expected reconciled plan to be looked up successfully: %+v", lr)
	}
}

func TestReconcileFlagsHashMismatch(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.CompleteBootstrap(approvedPlan("first")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	badPath := filepath.Join(r.plansDir, "notarealhash.md")
	if err := os.WriteFile(badPath, approvedPlan("mismatched"), 0o644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}

	report, err := r.Reconcile()
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Mismatched) != 1 || report.Mismatched[0] != "notarealhash.md" {
		t.Fatalf("expected mismatch flagged, got %+v", report)
	}
}
