package pathauth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

func lockedAuthority(t *testing.T) (*Authority, string) {
	t.Helper()
	root := t.TempDir()
	a := New()
	if err := a.Lock(root); err != nil {
		t.Fatalf("lock: %v", err)
	}
	return a, a.Root()
}

func TestLockRejectsRelativeRoot(t *testing.T) {
	a := New()
	if err := a.Lock("relative/dir"); err == nil {
		t.Fatal("expected error for relative root")
	} else if !gkerrors.Is(err, gkerrors.CodePathNotAbsolute) {
		t.Fatalf("expected CodePathNotAbsolute, got %v", err)
	}
}

func TestLockRejectsSecondCall(t *testing.T) {
	a, root := lockedAuthority(t)
	if err := a.Lock(root); !gkerrors.Is(err, gkerrors.CodeSessionAlreadyInit) {
		t.Fatalf("expected CodeSessionAlreadyInit, got %v", err)
	}
}

func TestResolveWriteRejectsRootItself(t *testing.T) {
	a, root := lockedAuthority(t)
	if _, err := a.ResolveWrite(root); err == nil {
		t.Fatal("expected rejection writing to root itself")
	}
}

func TestResolveReadAcceptsRootItself(t *testing.T) {
	a, root := lockedAuthority(t)
	resolved, err := a.ResolveRead(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != root {
		t.Fatalf("expected %s, got %s", root, resolved)
	}
}

func TestResolveWriteRejectsTraversal(t *testing.T) {
	a, _ := lockedAuthority(t)
	if _, err := a.ResolveWrite("../../etc/secret"); !gkerrors.Is(err, gkerrors.CodePathTraversal) {
		t.Fatalf("expected CodePathTraversal, got %v", err)
	}
}

func TestResolveWriteCollapsesLexicalTraversalWithinRoot(t *testing.T) {
	a, root := lockedAuthority(t)
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	resolved, err := a.ResolveWrite(filepath.Join("a", "b", "..", "c.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "a", "c.txt")
	if resolved != want {
		t.Fatalf("expected %s, got %s", want, resolved)
	}
}

func TestResolveWriteRejectsSymlinkEscape(t *testing.T) {
	a, root := lockedAuthority(t)
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := a.ResolveWrite(filepath.Join("escape", "file.txt")); !gkerrors.Is(err, gkerrors.CodePathTraversal) {
		t.Fatalf("expected CodePathTraversal, got %v", err)
	}
}

func TestResolveBeforeLockFails(t *testing.T) {
	a := New()
	if _, err := a.ResolveRead("foo"); !gkerrors.Is(err, gkerrors.CodePathNotLocked) {
		t.Fatalf("expected CodePathNotLocked, got %v", err)
	}
}

func TestEnsureDirCreatesParents(t *testing.T) {
	a, root := lockedAuthority(t)
	target := filepath.Join(root, "nested", "dir", "file.txt")
	if err := a.EnsureDir(target); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "nested", "dir")); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}
