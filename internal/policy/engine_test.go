package policy

import (
	"testing"

	"github.com/boshu2/gatekeeper/internal/plan"
)

type fakeAllowances struct {
	entries map[string]plan.Allowance
}

func (f fakeAllowances) AllowanceFor(constructCode, location string) (plan.Allowance, bool) {
	a, ok := f.entries[constructCode+"@"+location]
	return a, ok
}

func TestEvaluateHardBlockNeverWaived(t *testing.T) {
	content := []byte("// TODO fix this later\npackage foo\n")
	allowances := fakeAllowances{entries: map[string]plan.Allowance{
		"INCOMPLETE_WORK_MARKER@foo.go:1": {ConstructCode: "INCOMPLETE_WORK_MARKER", Location: "foo.go:1"},
	}}
	violations, err := Evaluate("foo.go", content, allowances)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocking := Blocking(violations)
	if len(blocking) == 0 {
		t.Fatal("expected hard-block violation to remain blocking despite an allowance entry")
	}
}

func TestEvaluateNonHardBlockWaivedByAllowance(t *testing.T) {
	// A method declaration: Phase B flags it, while Phase A's textual
	// unconditional-pass pattern (a hard block) only matches plain funcs.
	content := []byte("package foo\n\ntype S struct{}\n\nfunc (S) IsAuthorized() bool {\n\treturn true\n}\n")
	violations, err := Evaluate("foo.go", content, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(Blocking(violations)) == 0 {
		t.Fatal("expected structural-pass violation without an allowance to block")
	}

	allowances := fakeAllowances{entries: map[string]plan.Allowance{
		"STRUCTURAL_UNCONDITIONAL_PASS@foo.go:5": {ConstructCode: "STRUCTURAL_UNCONDITIONAL_PASS", Location: "foo.go:5"},
	}}
	waived, err := Evaluate("foo.go", content, allowances)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(Blocking(waived)) != 0 {
		t.Fatalf("expected allowance to waive the non-hard-block violation, got %+v", Blocking(waived))
	}
}

func TestEvaluateDeterministicOrdering(t *testing.T) {
	content := []byte("// TODO a\npackage foo\n// FIXME b\n")
	a, err := Evaluate("foo.go", content, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Evaluate("foo.go", content, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("expected stable count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Line != b[i].Line || a[i].Category != b[i].Category {
			t.Fatalf("expected deterministic order at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
