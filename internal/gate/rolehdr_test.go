package gate

import (
	"strings"
	"testing"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

func TestSynthesizeRoleHeaderRoundTrips(t *testing.T) {
	fields := RoleHeaderFields{Role: ArtifactRoleExecutable, Owner: "team-infra", Purpose: "deploy script"}
	out, err := SynthesizeRoleHeader("scripts/deploy.sh", fields, []byte("echo hi\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(out), "# gatekeeper-role: role=executable owner=team-infra purpose=\"deploy script\"\n") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.HasSuffix(string(out), "echo hi\n") {
		t.Fatalf("expected original content preserved, got %q", out)
	}

	parsed, ok, err := ParseRoleHeader(out)
	if err != nil || !ok {
		t.Fatalf("expected parse to succeed, ok=%v err=%v", ok, err)
	}
	if parsed != fields {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", parsed, fields)
	}
}

func TestSynthesizeRoleHeaderRejectsIncompatibleExtension(t *testing.T) {
	fields := RoleHeaderFields{Role: ArtifactRoleExecutable, Owner: "team-infra", Purpose: "bad"}
	_, err := SynthesizeRoleHeader("config/service.yaml", fields, []byte("key: value\n"))
	if !gkerrors.Is(err, gkerrors.CodeRoleHeaderInvalid) {
		t.Fatalf("expected CodeRoleHeaderInvalid, got %v", err)
	}
}

func TestSynthesizeRoleHeaderRequiresAllFields(t *testing.T) {
	_, err := SynthesizeRoleHeader("docs/readme.md", RoleHeaderFields{Role: ArtifactRoleDocumentation}, []byte("body\n"))
	if !gkerrors.Is(err, gkerrors.CodeRoleHeaderInvalid) {
		t.Fatalf("expected CodeRoleHeaderInvalid for missing fields, got %v", err)
	}
}

func TestParseRoleHeaderAbsent(t *testing.T) {
	_, ok, err := ParseRoleHeader([]byte("just a normal file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no header to be found")
	}
}
