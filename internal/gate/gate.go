// Package gate implements the admission pipeline (spec §4.7): a linear
// sequence of gates, each with explicit rollback, through which every
// mutation request must pass. It is the single point that ties together
// session, path authority, the plan registry, the content policy engine,
// the preflight runner, and the audit log.
package gate

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/metrics"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/policy"
	"github.com/boshu2/gatekeeper/internal/preflight"
	"github.com/boshu2/gatekeeper/internal/session"
)

// Gate wires together every component the pipeline needs. One Gate serves
// one session's write requests.
type Gate struct {
	Session      *session.Session
	Registry     *plan.Registry
	AuditLog     *audit.Log
	Preflight    *preflight.Runner
	PreflightCmd preflight.Command
	Metrics      *metrics.Registry
}

// New constructs a Gate. All dependencies must already be initialized
// (session begun, registry loaded, audit log opened).
func New(sess *session.Session, registry *plan.Registry, auditLog *audit.Log, runner *preflight.Runner, cmd preflight.Command) *Gate {
	return &Gate{
		Session:      sess,
		Registry:     registry,
		AuditLog:     auditLog,
		Preflight:    runner,
		PreflightCmd: cmd,
	}
}

// WithMetrics attaches a metrics registry that Write reports gate outcomes
// and audit-append latency to. Returns g for chaining. A Gate with no
// metrics attached behaves exactly as before (Registry's Observe* methods
// are nil-safe).
func (g *Gate) WithMetrics(reg *metrics.Registry) *Gate {
	g.Metrics = reg
	return g
}

// Write runs req through G1–G10. On any failure the filesystem is left
// exactly as it was found (or reverted to its pre-image, if G8 already
// ran) and a structured *gkerrors.Error describing the failing gate is
// returned.
func (g *Gate) Write(ctx context.Context, req WriteRequest) (Outcome, error) {
	// G1 — Schema & Session.
	if err := g.gate1SchemaAndSession(req); err != nil {
		return Outcome{}, err
	}

	// G2 — Path Authority.
	resolvedPath, err := g.Session.Paths().ResolveWrite(req.Path)
	if err != nil {
		return Outcome{}, err
	}
	relPath := g.Session.Paths().RelativeToRoot(resolvedPath)

	currentContent, existed, err := readIfExists(resolvedPath)
	if err != nil {
		return Outcome{}, g.fail(req, relPath, gkerrors.Wrap(gkerrors.PhasePath, gkerrors.CodePathNotFound,
			"failed to read current content at target path", err), "G2")
	}

	// G3 — Concurrency Precondition.
	if req.PreviousHash != "" {
		currentHash := audit.HashBytes(currentContent)
		if currentHash != req.PreviousHash {
			return Outcome{}, g.fail(req, relPath, gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodePreviousHashMismatch,
				"current content hash does not match caller-supplied previous_hash"), "G3")
		}
	}

	// G4 — Materialize Content.
	materialized, err := g.gate4Materialize(req, currentContent)
	if err != nil {
		return Outcome{}, g.fail(req, relPath, err, "G4")
	}

	// G5 — Plan Authority.
	authorizingPlan, err := g.gate5PlanAuthority(req.PlanRef, relPath)
	if err != nil {
		return Outcome{}, g.fail(req, relPath, err, "G5")
	}

	// G6 — Role-Header Synthesis.
	if req.RoleHeader != nil {
		materialized, err = SynthesizeRoleHeader(req.Path, *req.RoleHeader, materialized)
		if err != nil {
			return Outcome{}, g.fail(req, relPath, err, "G6")
		}
	}

	// G7 — Content Policy.
	violations, err := policy.Evaluate(relPath, materialized, &authorizingPlan)
	if err != nil {
		return Outcome{}, g.fail(req, relPath, err, "G7")
	}
	if blocking := policy.Blocking(violations); len(blocking) > 0 {
		return Outcome{}, g.fail(req, relPath, policyRejection(blocking), "G7")
	}

	// G8 — Commit Filesystem.
	if err := g.Session.Paths().EnsureDir(resolvedPath); err != nil {
		return Outcome{}, g.fail(req, relPath, err, "G8")
	}
	if err := atomicWrite(resolvedPath, materialized); err != nil {
		return Outcome{}, g.fail(req, relPath, gkerrors.Wrap(gkerrors.PhaseWrite, gkerrors.CodeAtomicRenameFailed,
			"failed to commit materialized content", err), "G8")
	}

	// G9 — Preflight.
	result, err := g.Preflight.Run(ctx, g.Session.WorkspaceRoot(), g.PreflightCmd)
	if err != nil {
		revertErr := revert(resolvedPath, currentContent, existed)
		finalErr := err
		if revertErr != nil {
			finalErr = gkerrors.Wrap(gkerrors.PhaseWrite, gkerrors.CodeAtomicRenameFailed,
				"preflight failed and revert also failed", revertErr)
		}
		return Outcome{}, g.fail(req, relPath, finalErr, "G9")
	}

	// G10 — Audit Commit.
	rec, auditErr := g.appendWriteAudit(req, relPath, authorizingPlan.Hash, materialized, result)
	if auditErr != nil {
		revertErr := revert(resolvedPath, currentContent, existed)
		finalErr := gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"audit commit failed; write treated as never having happened", auditErr)
		if revertErr != nil {
			finalErr = gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
				"audit commit failed and revert also failed", revertErr)
		}
		return Outcome{}, finalErr
	}
	_ = rec
	g.Metrics.ObserveGateOutcome("accepted", "", "")

	return Outcome{
		Status:   "accepted",
		PlanHash: authorizingPlan.Hash,
		Role:     string(g.Session.Role()),
		Path:     req.Path,
		Preflight: PreflightSummary{
			Success:    result.Success(),
			ExitCode:   result.ExitCode,
			DurationMS: result.DurationMS,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
		},
	}, nil
}

// gate1SchemaAndSession validates the request's structural shape and that
// the session is eligible to write at all (spec §4.7 G1).
func (g *Gate) gate1SchemaAndSession(req WriteRequest) error {
	if err := g.Session.RequirePromptGate(); err != nil {
		return err
	}
	if !g.Session.Role().CanWrite() {
		return gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSchemaInvalid,
			"session role "+string(g.Session.Role())+" is not permitted to write")
	}
	if req.Path == "" {
		return gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeSchemaInvalid, "path must not be empty")
	}
	if req.PlanRef == "" {
		return gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeSchemaInvalid, "plan reference must not be empty")
	}
	hasContent := req.Content != nil
	hasPatch := req.Patch != nil
	if hasContent == hasPatch {
		return gkerrors.New(gkerrors.PhaseWrite, gkerrors.CodeSchemaInvalid,
			"exactly one of content or patch must be supplied")
	}
	return nil
}

// gate4Materialize applies G4's content-materialization rule.
func (g *Gate) gate4Materialize(req WriteRequest, currentContent []byte) ([]byte, error) {
	if req.Patch != nil {
		return ApplyPatch(currentContent, req.Patch)
	}
	return req.Content, nil
}

// gate5PlanAuthority resolves and validates the plan reference (spec §4.7
// G5, four sub-checks in order).
func (g *Gate) gate5PlanAuthority(planHash, relPath string) (plan.Plan, error) {
	lookup := g.Registry.Lookup(planHash)
	if !lookup.Hit {
		return plan.Plan{}, planMissError(lookup.Reason)
	}
	if !lookup.Plan.IsApproved() {
		return plan.Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanStatusNotApproved,
			"plan status is not APPROVED")
	}
	if !plan.InScope(lookup.Plan.Header.Scope, relPath) {
		return plan.Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanOutOfScope,
			"target path is outside the plan's declared scope: "+relPath)
	}
	return lookup.Plan, nil
}

func planMissError(reason plan.MissReason) error {
	switch reason {
	case plan.MissNotIndexed:
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanNotFound, "plan hash is not registered")
	case plan.MissFileMissing:
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference, "indexed plan file is missing on disk")
	case plan.MissHashMismatch:
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanHashMismatch, "plan file content hash does not match its filename")
	case plan.MissStatusWeakened:
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanStatusNotApproved, "plan status has weakened since it was indexed")
	default:
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanNotFound, "plan hash is not a current authority")
	}
}

// policyRejection picks the most specific error code for a blocking
// violation set: a hard block if any is present, else a structural
// rejection.
func policyRejection(blocking []policy.Violation) error {
	for _, v := range blocking {
		if v.Category.HardBlock() {
			return gkerrors.New(gkerrors.PhasePolicy, gkerrors.CodePolicyHardBlock,
				"content policy hard block: "+string(v.Category)).WithInvariant("I-POLICY-HARD-BLOCK")
		}
	}
	return gkerrors.New(gkerrors.PhasePolicy, gkerrors.CodePolicyStructural,
		"content policy structural violation: "+string(blocking[0].Category))
}

// appendWriteAudit builds and appends the G10 audit record.
func (g *Gate) appendWriteAudit(req WriteRequest, relPath, planHash string, materialized []byte, pf preflight.Result) (audit.Record, error) {
	argsHash, err := hashRequestArgs(req)
	if err != nil {
		return audit.Record{}, err
	}
	ev := audit.Event{
		SessionID:     g.Session.ID(),
		Role:          string(g.Session.Role()),
		WorkspaceRoot: g.Session.WorkspaceRoot(),
		Tool:          "write_file",
		Intent:        "write",
		PlanHash:      planHash,
		ArgsHash:      argsHash,
		ResultHash:    audit.HashBytes(materialized),
		Extra: map[string]string{
			"path":              relPath,
			"preflight_success": strconv.FormatBool(pf.Success()),
			"preflight_exit":    strconv.Itoa(pf.ExitCode),
		},
	}
	start := time.Now()
	rec, err := g.AuditLog.Append(ev)
	g.Metrics.ObserveAuditAppend(time.Since(start).Seconds())
	return rec, err
}

// fail appends a best-effort audit record for a request that was rejected
// from G2 onward (where a resolved path and a live audit log both exist),
// then returns the original error unchanged so the caller sees the real
// rejection reason regardless of whether the audit append itself
// succeeded (pinned Open Question decision, SPEC_FULL.md §D).
func (g *Gate) fail(req WriteRequest, relPath string, err error, phaseID string) error {
	code, _ := gkerrors.CodeOf(err)
	g.Metrics.ObserveGateOutcome("rejected", phaseID, string(code))

	argsHash, hashErr := hashRequestArgs(req)
	if hashErr != nil {
		return err
	}
	start := time.Now()
	_, _ = g.AuditLog.Append(audit.Event{
		SessionID:     g.Session.ID(),
		Role:          string(g.Session.Role()),
		WorkspaceRoot: g.Session.WorkspaceRoot(),
		Tool:          "write_file",
		Intent:        "write",
		PlanHash:      req.PlanRef,
		PhaseID:       phaseID,
		ArgsHash:      argsHash,
		ErrorCode:     string(code),
		Extra:         map[string]string{"path": relPath},
	})
	g.Metrics.ObserveAuditAppend(time.Since(start).Seconds())
	return err
}

// hashRequestArgs computes args_hash over a canonical, deterministic view
// of the request (never the raw content/patch bytes verbatim, to keep
// large payloads out of the hash input's serialized form — the hash of the
// bytes is embedded instead).
func hashRequestArgs(req WriteRequest) (string, error) {
	type canonicalArgs struct {
		Path         string `json:"path"`
		PlanRef      string `json:"plan_ref"`
		PreviousHash string `json:"previous_hash,omitempty"`
		ContentHash  string `json:"content_hash,omitempty"`
		PatchHash    string `json:"patch_hash,omitempty"`
	}
	ca := canonicalArgs{Path: req.Path, PlanRef: req.PlanRef, PreviousHash: req.PreviousHash}
	if req.Content != nil {
		ca.ContentHash = audit.HashBytes(req.Content)
	}
	if req.Patch != nil {
		ca.PatchHash = audit.HashBytes(req.Patch)
	}
	raw, err := json.Marshal(ca)
	if err != nil {
		return "", gkerrors.Wrap(gkerrors.PhaseWrite, gkerrors.CodeSchemaInvalid,
			"failed to serialize request for args_hash", err)
	}
	return audit.HashBytes(raw), nil
}

func readIfExists(path string) (content []byte, existed bool, err error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

