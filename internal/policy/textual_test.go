package policy

import "testing"

func TestScanTextualDetectsIncompleteWorkMarker(t *testing.T) {
	content := "package foo\n// TODO: finish this\nfunc Foo() {}\n"
	violations := ScanTextual("foo.go", content)
	found := false
	for _, v := range violations {
		if v.Category == CategoryIncompleteWorkMarker && v.Line == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected incomplete-work marker at line 2, got %+v", violations)
	}
}

func TestScanTextualTestDoubleExemptInTestPath(t *testing.T) {
	content := "package foo\nfunc mockService() {}\n"
	if v := ScanTextual("internal/foo/foo_test.go", content); len(v) != 0 {
		t.Fatalf("expected no violations in test path, got %+v", v)
	}
	if v := ScanTextual("internal/foo/foo.go", content); len(v) == 0 {
		t.Fatal("expected test-double violation outside test path")
	}
}

func TestScanTextualSimulatedOutcomeFlag(t *testing.T) {
	content := "package foo\nvar DRY_RUN = true\n"
	violations := ScanTextual("foo.go", content)
	if len(violations) == 0 || violations[0].Category != CategorySimulatedOutcome {
		t.Fatalf("expected simulated-outcome violation, got %+v", violations)
	}
}

func TestScanTextualAmbiguousEmptyReturn(t *testing.T) {
	content := "function foo() {\n  return null\n}\n"
	violations := ScanTextual("foo.js", content)
	found := false
	for _, v := range violations {
		if v.Category == CategoryAmbiguousEmptyReturn {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ambiguous empty return violation, got %+v", violations)
	}
}

func TestScanTextualDeterministicOrdering(t *testing.T) {
	content := "// TODO one\n// FIXME two\n"
	a := ScanTextual("foo.go", content)
	b := ScanTextual("foo.go", content)
	if len(a) != len(b) {
		t.Fatalf("expected stable violation count, got %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic ordering at index %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
