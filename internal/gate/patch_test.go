package gate

import (
	"testing"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

func TestApplyPatchSimpleReplace(t *testing.T) {
	original := []byte("alpha\nbeta\ngamma\n")
	patch := []byte("@@ -1,3 +1,3 @@\n alpha\n-beta\n+beta changed\n gamma\n")

	got, err := ApplyPatch(original, patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "alpha\nbeta changed\ngamma\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyPatchInsertionOnly(t *testing.T) {
	original := []byte("first\nthird\n")
	patch := []byte("@@ -1,0 +2 @@\n+second\n")

	got, err := ApplyPatch(original, patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "first\nsecond\nthird\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyPatchContextMismatchFails(t *testing.T) {
	original := []byte("alpha\nbeta\ngamma\n")
	patch := []byte("@@ -1,3 +1,3 @@\n alpha\n-not-beta\n+beta changed\n gamma\n")

	_, err := ApplyPatch(original, patch)
	if !gkerrors.Is(err, gkerrors.CodePatchDoesNotApply) {
		t.Fatalf("expected CodePatchDoesNotApply, got %v", err)
	}
}

func TestApplyPatchEmptyPatchRejected(t *testing.T) {
	_, err := ApplyPatch([]byte("content\n"), []byte(""))
	if !gkerrors.Is(err, gkerrors.CodePatchDoesNotApply) {
		t.Fatalf("expected CodePatchDoesNotApply for empty patch, got %v", err)
	}
}
