package bootstrap

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
)

func openTestRegistry(t *testing.T) *plan.Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := plan.Open(filepath.Join(dir, ".gatekeeper"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r
}

func approvedPlan() []byte {
	return []byte("---\n" +
		"status: APPROVED\n" +
		"scope:\n  - \"internal/**\"\n" +
		"version: \"1\"\n" +
		"created_at: 2026-01-01T00:00:00Z\n" +
		"purpose: \"bootstrap\"\n" +
		"---\n" +
		"Body.\n")
}

func validPayload(now time.Time) Payload {
	return Payload{
		RepoID:    "repo-1",
		Timestamp: now,
		Nonce:     "0123456789abcdef",
		Action:    "bootstrap_first_plan",
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1, err := DeriveKey([]byte("secret-material"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeriveKey([]byte("secret-material"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatal("expected deterministic derivation for identical secret material")
	}
}

func TestVerifyRejectsBadMAC(t *testing.T) {
	key, _ := DeriveKey([]byte("secret"))
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	req := Request{Payload: validPayload(now), MAC: []byte("not-a-real-mac"), PlanContent: approvedPlan()}
	if err := Verify(key, req, now); !gkerrors.Is(err, gkerrors.CodeBootstrapSignatureBad) {
		t.Fatalf("expected CodeBootstrapSignatureBad, got %v", err)
	}
}

func TestVerifyAcceptsValidMACWithinWindow(t *testing.T) {
	key, _ := DeriveKey([]byte("secret"))
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	payload := validPayload(now)
	mac, err := ComputeMAC(key, payload)
	if err != nil {
		t.Fatalf("compute mac: %v", err)
	}
	req := Request{Payload: payload, MAC: mac, PlanContent: approvedPlan()}
	if err := Verify(key, req, now); err != nil {
		t.Fatalf("expected valid verification, got %v", err)
	}
}

func TestVerifyRejectsExpiredTimestamp(t *testing.T) {
	key, _ := DeriveKey([]byte("secret"))
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	payload := validPayload(now.Add(-10 * time.Minute))
	mac, _ := ComputeMAC(key, payload)
	req := Request{Payload: payload, MAC: mac}
	if err := Verify(key, req, now); !gkerrors.Is(err, gkerrors.CodeBootstrapExpired) {
		t.Fatalf("expected CodeBootstrapExpired, got %v", err)
	}
}

func TestAttemptSucceedsOnceAndDisablesBootstrap(t *testing.T) {
	registry := openTestRegistry(t)
	key, _ := DeriveKey([]byte("secret"))
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	payload := validPayload(now)
	mac, _ := ComputeMAC(key, payload)
	req := Request{Payload: payload, MAC: mac, PlanContent: approvedPlan()}

	if _, err := Attempt(registry, key, req, now); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if registry.State().BootstrapEnabled {
		t.Fatal("expected bootstrap disabled after success")
	}

	if _, err := Attempt(registry, key, req, now); !gkerrors.Is(err, gkerrors.CodeBootstrapDisabled) {
		t.Fatalf("expected CodeBootstrapDisabled on second attempt, got %v", err)
	}
}

func TestValidatePayloadShapeRejectsMissingField(t *testing.T) {
	raw, _ := json.Marshal(map[string]string{"repo_id": "r", "action": "bootstrap_first_plan"})
	if err := ValidatePayloadShape(raw); err == nil {
		t.Fatal("expected schema validation error for missing timestamp/nonce")
	}
}

func TestValidatePayloadShapeAcceptsWellFormed(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(validPayload(now))
	if err := ValidatePayloadShape(raw); err != nil {
		t.Fatalf("expected valid payload to pass schema, got %v", err)
	}
}
