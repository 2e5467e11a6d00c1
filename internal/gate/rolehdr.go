package gate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// ArtifactRole is the closed set of role declarations a write request may
// synthesize into a file's header (spec §4.7 G6).
type ArtifactRole string

const (
	ArtifactRoleExecutable     ArtifactRole = "executable"
	ArtifactRoleInfrastructure ArtifactRole = "infrastructure"
	ArtifactRoleDocumentation  ArtifactRole = "documentation"
)

// RoleHeaderFields are the optional role-metadata fields a write request
// may carry; when present, G6 synthesizes and validates a header block.
type RoleHeaderFields struct {
	Role    ArtifactRole
	Owner   string
	Purpose string
}

// infrastructureOnlyExtensions is the fixed compatibility matrix (spec §4.7
// G6: "a file declaring an executable role must not be an
// infrastructure-only artifact"). Extensions here may never declare
// ArtifactRoleExecutable.
var infrastructureOnlyExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".toml": true,
	".ini":  true,
	".tf":   true,
}

// commentPrefixFor picks a line-comment style matching the target file's
// language, so the synthesized header doesn't corrupt syntax for formats
// that don't recognize "//"-style comments.
func commentPrefixFor(path string) string {
	switch filepath.Ext(path) {
	case ".py", ".yaml", ".yml", ".sh", ".rb", ".toml", ".ini":
		return "# "
	default:
		return "// "
	}
}

var roleHeaderPattern = regexp.MustCompile(`^(?://|#)\s*gatekeeper-role:\s*role=(\S+)\s+owner=(\S+)\s+purpose="([^"]*)"\s*$`)

// SynthesizeRoleHeader prepends a role header line to content and
// validates the result: required fields present, and role-vs-extension
// consistency against the fixed compatibility matrix.
func SynthesizeRoleHeader(path string, fields RoleHeaderFields, content []byte) ([]byte, error) {
	if fields.Role == "" || fields.Owner == "" || fields.Purpose == "" {
		return nil, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeRoleHeaderInvalid,
			"role header requires role, owner, and purpose")
	}
	if strings.ContainsAny(fields.Owner, " \t\n") {
		return nil, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeRoleHeaderInvalid,
			"role header owner must not contain whitespace")
	}
	if err := checkRoleExtensionConsistency(path, fields.Role); err != nil {
		return nil, err
	}

	headerLine := fmt.Sprintf("%sgatekeeper-role: role=%s owner=%s purpose=%q\n",
		commentPrefixFor(path), fields.Role, fields.Owner, fields.Purpose)

	synthesized := append([]byte(headerLine), content...)

	// Parse the header back out of what we just wrote and re-validate, so
	// a future change to the synthesis format can't silently desync from
	// what ParseRoleHeader actually accepts.
	parsed, ok, err := ParseRoleHeader(synthesized)
	if err != nil {
		return nil, err
	}
	if !ok || parsed.Role != fields.Role || parsed.Owner != fields.Owner || parsed.Purpose != fields.Purpose {
		return nil, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeRoleHeaderInvalid,
			"synthesized role header failed to round-trip")
	}

	return synthesized, nil
}

// checkRoleExtensionConsistency enforces the fixed compatibility matrix:
// infrastructure-only file types may never declare an executable role.
func checkRoleExtensionConsistency(path string, role ArtifactRole) error {
	ext := filepath.Ext(path)
	if infrastructureOnlyExtensions[ext] && role == ArtifactRoleExecutable {
		return gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeRoleHeaderInvalid,
			fmt.Sprintf("role %q is incompatible with infrastructure-only file type %q", role, ext))
	}
	return nil
}

// ParseRoleHeader extracts a previously synthesized role header from the
// first line of content, if present.
func ParseRoleHeader(content []byte) (RoleHeaderFields, bool, error) {
	nl := strings.IndexByte(string(content), '\n')
	firstLine := string(content)
	if nl >= 0 {
		firstLine = string(content[:nl])
	}
	m := roleHeaderPattern.FindStringSubmatch(strings.TrimRight(firstLine, "\r"))
	if m == nil {
		return RoleHeaderFields{}, false, nil
	}
	fields := RoleHeaderFields{
		Role:    ArtifactRole(m[1]),
		Owner:   m[2],
		Purpose: m[3],
	}
	return fields, true, nil
}
