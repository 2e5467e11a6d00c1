// Package format provides the output formatters shared by cmd/gatekeeper's
// `write`, `audit show`, `replay`, and `plans list` subcommands: a
// structured envelope rendered as JSONL, Markdown, or a table, matching the
// teacher's internal/formatter shape (jsonl.go/markdown.go/table.go)
// adapted from per-session output to the gatekeeper's own result types.
package format

import (
	"fmt"
	"io"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/gate"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/replay"
)

// PlanSummary is the row shape `plans list` renders: a hash paired with the
// registry's index entry for it.
type PlanSummary struct {
	Hash  string          `json:"hash"`
	Entry plan.IndexEntry `json:"entry"`
}

// Envelope is the single result shape every gatekeeper CLI command renders
// through a Formatter. Exactly one of the result sections is populated per
// command; Err is populated instead of the others on rejection.
type Envelope struct {
	Command string `json:"command"`

	WriteOutcome *gate.Outcome   `json:"write_outcome,omitempty"`
	AuditRecords []audit.Record  `json:"audit_records,omitempty"`
	Plans        []PlanSummary   `json:"plans,omitempty"`
	Verdict      *replay.Verdict `json:"verdict,omitempty"`
	Err          *gkerrors.Error `json:"error,omitempty"`
}

// Formatter renders an Envelope to w. Implementations must not retain w
// after Format returns.
type Formatter interface {
	Format(w io.Writer, env Envelope) error
	Extension() string
}

// ByName resolves the formatter named by the CLI's -o/--output flag,
// matching the teacher's `internal/config` "unknown value" error style.
func ByName(name string) (Formatter, error) {
	switch name {
	case "", "table":
		return NewTableFormatter(), nil
	case "json", "jsonl":
		return NewJSONLFormatter(), nil
	case "markdown", "md":
		return NewMarkdownFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q: want table, json, or markdown", name)
	}
}
