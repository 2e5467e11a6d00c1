package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/gate"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/replay"
)

func TestByNameResolvesKnownFormats(t *testing.T) {
	for _, name := range []string{"", "table", "json", "jsonl", "markdown", "md"} {
		if _, err := ByName(name); err != nil {
			t.Fatalf("ByName(%q): unexpected error: %v", name, err)
		}
	}
}

func TestByNameRejectsUnknownFormat(t *testing.T) {
	if _, err := ByName("yaml"); err == nil {
		t.Fatal("expected an error for an unknown format name")
	}
}

func TestJSONLFormatterRoundTripsWriteOutcome(t *testing.T) {
	f := NewJSONLFormatter()
	env := Envelope{
		Command: "write",
		WriteOutcome: &gate.Outcome{
			Status: "accepted", PlanHash: "abc", Role: "executable", Path: "docs/readme.md",
		},
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if out["command"] != "write" {
		t.Errorf("command = %v, want write", out["command"])
	}
	wo := out["write_outcome"].(map[string]interface{})
	if wo["Status"] != "accepted" {
		t.Errorf("write_outcome.Status = %v, want accepted", wo["Status"])
	}
}

func TestMarkdownFormatterRendersAuditRecords(t *testing.T) {
	f := NewMarkdownFormatter()
	env := Envelope{
		Command: "audit show",
		AuditRecords: []audit.Record{
			{Seq: 1, Tool: "write_file", Intent: "write"},
			{Seq: 2, Tool: "replay_execution", Intent: "replay"},
		},
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "seq 1: write_file / write") {
		t.Errorf("expected record 1 rendered, got:\n%s", out)
	}
	if !strings.Contains(out, "seq 2: replay_execution / replay") {
		t.Errorf("expected record 2 rendered, got:\n%s", out)
	}
}

func TestMarkdownFormatterRendersRejection(t *testing.T) {
	f := NewMarkdownFormatter()
	env := Envelope{
		Command: "write",
		Err:     gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanOutOfScope, "path is outside plan scope"),
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "PLAN_OUT_OF_SCOPE") {
		t.Errorf("expected rejection code rendered, got:\n%s", out)
	}
}

func TestTableFormatterRendersPlans(t *testing.T) {
	f := NewTableFormatter()
	env := Envelope{
		Command: "plans list",
		Plans: []PlanSummary{
			{Hash: "abc123", Entry: plan.IndexEntry{Status: plan.StatusApproved, Verified: true, FilePath: "plans/abc123.md"}},
		},
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "abc123") || !strings.Contains(out, "APPROVED") {
		t.Errorf("expected plan row rendered, got:\n%s", out)
	}
}

func TestTableFormatterNoColorToNonTTYBuffer(t *testing.T) {
	f := NewTableFormatter()
	env := Envelope{
		Command:      "write",
		WriteOutcome: &gate.Outcome{Status: "accepted"},
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected no ANSI color escapes when writing to a bytes.Buffer, got:\n%q", buf.String())
	}
}

func TestTableFormatterRendersVerdict(t *testing.T) {
	f := NewTableFormatter()
	env := Envelope{
		Command: "replay",
		Verdict: &replay.Verdict{
			Pass: false,
			Findings: []replay.Finding{
				{Kind: replay.KindDivergence, Seqs: []uint64{1, 2}, Detail: "result_hash diverges"},
			},
		},
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, env); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(buf.String(), "DIVERGENCE_IDENTICAL_ARGS_DIFFERENT_RESULTS") {
		t.Errorf("expected finding kind rendered, got:\n%s", buf.String())
	}
}
