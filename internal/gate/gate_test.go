package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/preflight"
	"github.com/boshu2/gatekeeper/internal/session"
)

func approvedPlanDoc(scope string) []byte {
	doc := "---\n" +
		"status: APPROVED\n" +
		"scope:\n  - \"" + scope + "\"\n" +
		"version: \"1\"\n" +
		"created_at: 2026-01-01T00:00:00Z\n" +
		"purpose: \"test fixture plan\"\n" +
		"---\n" +
		"Body.\n"
	return []byte(doc)
}

type testHarness struct {
	t    *testing.T
	root string
	sess *session.Session
	reg  *plan.Registry
	gate *Gate
}

func newHarness(t *testing.T, scope string, preflightCmd preflight.Command) *testHarness {
	t.Helper()
	root := t.TempDir()

	sess := session.New(session.RoleExecutor)
	if _, err := sess.Begin(root); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := sess.FetchPrompt(session.PromptExecutorBriefing); err != nil {
		t.Fatalf("fetch prompt: %v", err)
	}

	reg, err := plan.Open(filepath.Join(root, ".gatekeeper"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	authoringPlan, err := reg.CompleteBootstrap(approvedPlanDoc(scope))
	if err != nil {
		t.Fatalf("complete bootstrap: %v", err)
	}

	auditLog, err := audit.Open(root)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}

	g := New(sess, reg, auditLog, preflight.NewRunner(), preflightCmd)

	h := &testHarness{t: t, root: root, sess: sess, reg: reg, gate: g}
	_ = authoringPlan
	return h
}

func (h *testHarness) planHash() string {
	state := h.reg.State()
	for hash := range state.PlanIndex {
		return hash
	}
	h.t.Fatal("no plan registered in harness")
	return ""
}

func TestWriteAcceptsNewFile(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "true"})

	req := WriteRequest{
		Path:    "docs/readme.md",
		Content: []byte("hello world\n"),
		PlanRef: h.planHash(),
	}
	out, err := h.gate.Write(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if out.Status != "accepted" {
		t.Fatalf("expected accepted, got %+v", out)
	}

	got, err := os.ReadFile(filepath.Join(h.root, "docs/readme.md"))
	if err != nil {
		t.Fatalf("read committed file: %v", err)
	}
	if string(got) != "hello world\n" {
		t.Fatalf("unexpected committed content: %q", got)
	}
}

func TestWriteRejectsOutOfScopePath(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "true"})

	req := WriteRequest{
		Path:    "internal/other.go",
		Content: []byte("package other\n"),
		PlanRef: h.planHash(),
	}
	_, err := h.gate.Write(context.Background(), req)
	if !gkerrors.Is(err, gkerrors.CodePlanOutOfScope) {
		t.Fatalf("expected CodePlanOutOfScope, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(h.root, "internal/other.go")); !os.IsNotExist(statErr) {
		t.Fatal("rejected write must leave no filesystem trace")
	}
}

func TestWriteRejectsUnknownPlan(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "true"})

	req := WriteRequest{
		Path:    "docs/readme.md",
		Content: []byte("hello\n"),
		PlanRef: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"[:64],
	}
	_, err := h.gate.Write(context.Background(), req)
	if !gkerrors.Is(err, gkerrors.CodePlanNotFound) {
		t.Fatalf("expected CodePlanNotFound, got %v", err)
	}
}

func TestWriteRejectsHardBlockPolicyViolation(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "true"})

	req := WriteRequest{
		Path:    "docs/readme.md",
		Content: []byte("// TODO: finish this\n"),
		PlanRef: h.planHash(),
	}
	_, err := h.gate.Write(context.Background(), req)
	if !gkerrors.Is(err, gkerrors.CodePolicyHardBlock) {
		t.Fatalf("expected CodePolicyHardBlock, got %v", err)
	}
}

func TestWriteRevertsOnPreflightFailure(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "false"})

	target := filepath.Join(h.root, "docs/readme.md")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(target, []byte("original\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	req := WriteRequest{
		Path:    "docs/readme.md",
		Content: []byte("replacement\n"),
		PlanRef: h.planHash(),
	}
	_, err := h.gate.Write(context.Background(), req)
	if !gkerrors.Is(err, gkerrors.CodePreflightFailed) {
		t.Fatalf("expected CodePreflightFailed, got %v", err)
	}

	got, readErr := os.ReadFile(target)
	if readErr != nil {
		t.Fatalf("read reverted file: %v", readErr)
	}
	if string(got) != "original\n" {
		t.Fatalf("expected pre-image restored, got %q", got)
	}
}

func TestWriteAppliesPatch(t *testing.T) {
	h := newHarness(t, "docs/**", preflight.Command{Name: "true"})

	target := filepath.Join(h.root, "docs/readme.md")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(target, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	patch := []byte("@@ -1,2 +1,2 @@\n line one\n-line two\n+line two changed\n")
	req := WriteRequest{
		Path:    "docs/readme.md",
		Patch:   patch,
		PlanRef: h.planHash(),
	}
	_, err := h.gate.Write(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read committed file: %v", err)
	}
	if string(got) != "line one\nline two changed\n" {
		t.Fatalf("unexpected patched content: %q", got)
	}
}
