package plan

import "testing"

func TestInScopeExactPrefix(t *testing.T) {
	globs := []string{"internal/plan/*"}
	if !InScope(globs, "internal/plan/registry.go") {
		t.Fatal("expected match")
	}
	if InScope(globs, "internal/bootstrap/bootstrap.go") {
		t.Fatal("expected no match")
	}
}

func TestInScopeDoubleStarRecursive(t *testing.T) {
	globs := []string{"internal/**/*.go"}
	if !InScope(globs, "internal/plan/registry.go") {
		t.Fatal("expected recursive match")
	}
	if !InScope(globs, "internal/a/b/c/deep.go") {
		t.Fatal("expected deep recursive match")
	}
	if InScope(globs, "cmd/gatekeeper/main.go") {
		t.Fatal("expected no match outside internal/")
	}
}

func TestInScopeNoMatchWithoutGlob(t *testing.T) {
	globs := []string{"internal/plan/registry.go"}
	if !InScope(globs, "internal/plan/registry.go") {
		t.Fatal("expected literal path to match itself")
	}
	if InScope(globs, "internal/plan/state.go") {
		t.Fatal("expected no match for sibling file")
	}
}

func TestInScopeBareDirectorySugar(t *testing.T) {
	globs := []string{"src/"}
	if !InScope(globs, "src/main.go") {
		t.Fatal("expected bare directory entry to authorize a direct child")
	}
	if !InScope(globs, "src/pkg/deep/file.go") {
		t.Fatal("expected bare directory entry to authorize a nested descendant")
	}
	if InScope(globs, "other/main.go") {
		t.Fatal("expected no match outside the declared directory")
	}
}

func TestInScopeBoundedSegments(t *testing.T) {
	deep := ""
	for i := 0; i < MaxScopeSegments+5; i++ {
		deep += "a/"
	}
	deep += "file.go"
	globs := []string{"**/*.go"}
	// Still matches: ** absorbs the excess segments within the bound, the
	// cap only limits how many target segments are ever compared.
	if !InScope(globs, deep) {
		t.Fatal("expected bounded match to still succeed for simple trailing pattern")
	}
}
