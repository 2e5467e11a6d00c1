// Package plan implements the plan registry and authority resolver: the
// component that answers "is this plan hash a current authority, and what
// scope does it grant?" (spec §4.3). Plans are immutable, content-addressed
// markdown documents; the registry is a JSON governance-state file
// alongside the plans directory on disk.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// Status is the literal value a plan's header must declare to be
// authoritative.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusDraft    Status = "DRAFT"
	StatusRevoked  Status = "REVOKED"
)

// Header is the structured front matter every plan document carries. It is
// delimited by a leading "---" line, a YAML block, and a trailing "---"
// line, followed by the plan's free-form body.
type Header struct {
	Status       Status      `yaml:"status"`
	Scope        []string    `yaml:"scope"`
	Version      string      `yaml:"version"`
	CreatedAt    time.Time   `yaml:"created_at"`
	Purpose      string      `yaml:"purpose"`
	DeclaredHash string      `yaml:"declared_hash,omitempty"`
	Allowances   []Allowance `yaml:"allowances,omitempty"`
	// Phases enumerates the expected execution phase IDs this plan
	// authorizes, in order. Empty means the plan does not constrain
	// phases: any phase_id (or none) is acceptable for replay's authority
	// and evidence-gap findings (spec §4.8).
	Phases []string `yaml:"phases,omitempty"`
}

// Allowance is a per-plan authorized exception to a non-hard-block content
// policy category (spec §4.5 "Per-plan allowances").
type Allowance struct {
	ConstructCode string `yaml:"construct_code"`
	Location      string `yaml:"location"`
	Rationale     string `yaml:"rationale"`
}

// Plan is a fully parsed, content-addressed plan document.
type Plan struct {
	Hash   string
	Header Header
	Body   string
	Raw    []byte
}

const headerDelimiter = "---"

// Hash computes the hex SHA-256 of the entire raw content. This is the
// plan's identity; the canonical on-disk filename is "<hash>.md".
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileName returns the canonical on-disk filename for a given hash.
func FileName(hash string) string {
	return hash + ".md"
}

// Parse splits content into header and body and unmarshals the header. It
// does not check hash identity, status, or scope legality; those are the
// registry's job, since parse failures and authority failures surface as
// distinct structured errors (spec §4.5 "parse failure ... is itself a
// rejection", §4.3 "hash mismatch, status weakened").
func Parse(content []byte) (Plan, error) {
	text := string(content)
	hash := Hash(content)

	lines := strings.Split(text, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != headerDelimiter {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanLintFailed,
			"plan content missing leading header delimiter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == headerDelimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanLintFailed,
			"plan content missing closing header delimiter")
	}

	headerYAML := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var h Header
	if err := yaml.Unmarshal([]byte(headerYAML), &h); err != nil {
		return Plan{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanLintFailed,
			"plan header is not valid YAML", err)
	}

	if err := validateRequiredFields(h); err != nil {
		return Plan{}, err
	}

	return Plan{Hash: hash, Header: h, Body: body, Raw: content}, nil
}

func validateRequiredFields(h Header) error {
	var missing []string
	if h.Status == "" {
		missing = append(missing, "status")
	}
	if len(h.Scope) == 0 {
		missing = append(missing, "scope")
	}
	if h.Version == "" {
		missing = append(missing, "version")
	}
	if h.CreatedAt.IsZero() {
		missing = append(missing, "created_at")
	}
	if h.Purpose == "" {
		missing = append(missing, "purpose")
	}
	if len(missing) > 0 {
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanLintFailed,
			fmt.Sprintf("plan header missing required field(s): %s", strings.Join(missing, ", ")))
	}
	return nil
}

// IsApproved reports whether the header declares the plan authoritative.
func (p Plan) IsApproved() bool {
	return p.Header.Status == StatusApproved
}

// DeclaresPhases reports whether this plan constrains execution to a
// specific phase enumeration at all.
func (p Plan) DeclaresPhases() bool {
	return len(p.Header.Phases) > 0
}

// DeclaresPhase reports whether phaseID is one of this plan's declared
// phases. Always true if the plan does not constrain phases.
func (p Plan) DeclaresPhase(phaseID string) bool {
	if !p.DeclaresPhases() {
		return true
	}
	for _, ph := range p.Header.Phases {
		if ph == phaseID {
			return true
		}
	}
	return false
}

// AllowanceFor returns the first allowance matching constructCode and
// location, if any. The content policy engine consults this for
// non-hard-block violations only.
func (p Plan) AllowanceFor(constructCode, location string) (Allowance, bool) {
	for _, a := range p.Header.Allowances {
		if a.ConstructCode == constructCode && a.Location == location {
			return a, true
		}
	}
	return Allowance{}, false
}
