package plan

import (
	"strings"
	"testing"
)

func validPlanContent(t *testing.T, purpose string) []byte {
	t.Helper()
	doc := "---\n" +
		"status: APPROVED\n" +
		"scope:\n  - \"internal/**\"\n" +
		"version: \"1\"\n" +
		"created_at: 2026-01-01T00:00:00Z\n" +
		"purpose: \"" + purpose + "\"\n" +
		"---\n" +
		"Body text.\n"
	return []byte(doc)
}

func TestParseValidPlan(t *testing.T) {
	content := validPlanContent(t, "test plan")
	p, err := Parse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsApproved() {
		t.Fatal("expected plan to be approved")
	}
	if p.Hash != Hash(content) {
		t.Fatal("hash mismatch")
	}
	if !strings.Contains(p.Body, "Body text.") {
		t.Fatalf("unexpected body: %q", p.Body)
	}
}

func TestParseMissingDelimiter(t *testing.T) {
	if _, err := Parse([]byte("no header here")); err == nil {
		t.Fatal("expected error for missing header delimiter")
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	doc := "---\nstatus: APPROVED\n---\nbody\n"
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for missing required fields")
	}
}

func TestHashIdentity(t *testing.T) {
	a := validPlanContent(t, "a")
	b := validPlanContent(t, "b")
	if Hash(a) == Hash(b) {
		t.Fatal("distinct contents must not share a hash")
	}
}

func TestAllowanceFor(t *testing.T) {
	p := Plan{Header: Header{Allowances: []Allowance{
		{ConstructCode: "TODO_MARKER", Location: "foo.go:10", Rationale: "tracked in issue 1"},
	}}}
	if _, ok := p.AllowanceFor("TODO_MARKER", "foo.go:10"); !ok {
		t.Fatal("expected allowance match")
	}
	if _, ok := p.AllowanceFor("TODO_MARKER", "foo.go:99"); ok {
		t.Fatal("expected no match for different location")
	}
}
