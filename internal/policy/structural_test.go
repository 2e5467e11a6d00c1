package policy

import "testing"

func TestScanStructuralGoUnconditionalPass(t *testing.T) {
	src := []byte("package foo\n\nfunc IsAuthorized(user string) bool {\n\treturn true\n}\n")
	violations, err := ScanStructural("foo.go", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, v := range violations {
		if v.Category == CategoryStructuralPass {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected structural unconditional-pass violation, got %+v", violations)
	}
}

func TestScanStructuralGoEmptyHandlerBlock(t *testing.T) {
	src := []byte("package foo\n\nfunc Do() error {\n\terr := step()\n\tif err != nil {\n\t}\n\treturn nil\n}\n")
	violations, err := ScanStructural("foo.go", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, v := range violations {
		if v.Category == CategoryEmptyHandlerBlock {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected empty-handler-block violation, got %+v", violations)
	}
}

func TestScanStructuralUnknownLanguageNoFindings(t *testing.T) {
	violations, err := ScanStructural("notes.txt", []byte("anything goes here"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violations != nil {
		t.Fatalf("expected no structural findings for unknown language, got %+v", violations)
	}
}

func TestScanStructuralUnparseableContentFlagged(t *testing.T) {
	src := []byte("func func func {{{ ??? not go")
	violations, err := ScanStructural("foo.go", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) == 0 || violations[0].Category != CategoryUnparseableContent {
		t.Fatalf("expected unparseable-content violation, got %+v", violations)
	}
}
