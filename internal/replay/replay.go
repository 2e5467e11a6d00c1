package replay

import (
	"encoding/json"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/metrics"
	"github.com/boshu2/gatekeeper/internal/pathauth"
	"github.com/boshu2/gatekeeper/internal/plan"
)

// policyBlockedCodes is the closed family of error codes that represent a
// content-policy rejection rather than an execution (spec §4.8 "Policy:
// records with error_code in the blocked-by-gate family are surfaced as
// policy violations rather than execution").
var policyBlockedCodes = map[string]bool{
	string(gkerrors.CodePolicyHardBlock):   true,
	string(gkerrors.CodePolicyStructural):  true,
	string(gkerrors.CodePolicyUnparseable): true,
}

// mutatingTools is the closed set of tool names that change workspace
// state and are therefore subject to the Authority finding.
var mutatingTools = map[string]bool{
	"write_file": true,
}

// VerifyWorkspaceIntegrity checks, in order: the workspace root is valid,
// the audit file parses, sequences are monotone and gap-free, and every
// record's entry_hash/prev_hash recompute correctly (spec §4.8). It never
// mutates anything.
func VerifyWorkspaceIntegrity(paths *pathauth.Authority, log *audit.Log) (Verdict, error) {
	var findings []Finding

	if paths == nil || !paths.Locked() {
		findings = append(findings, Finding{Kind: KindWorkspaceInvalid, Detail: "workspace root is not locked"})
		return newVerdict(findings), nil
	}

	if _, err := log.ReadAll(); err != nil {
		if gkerrors.Is(err, gkerrors.CodeAuditChainBroken) {
			findings = append(findings, Finding{Kind: KindTamperInvalidJSON, Detail: err.Error()})
			return newVerdict(findings), nil
		}
		return Verdict{}, err
	}

	chainResult, err := log.VerifyChain()
	if err != nil {
		return Verdict{}, err
	}
	if !chainResult.OK {
		findings = append(findings, tamperFinding(chainResult))
	}

	return newVerdict(findings), nil
}

func tamperFinding(r audit.VerifyResult) Finding {
	kind := KindTamperChainBroken
	if r.FailingInvariant == "SEQ_MONOTONE_NO_GAPS" {
		kind = KindTamperSeqGap
	}
	return Finding{Kind: kind, Seqs: []uint64{r.FailingSeq}, Detail: r.FailingInvariant}
}

// Replay projects the audit log to records bearing planHash (narrowed by
// filters) and evaluates determinism, authority, policy, evidence-gap, and
// tamper findings (spec §4.8). It never invokes a tool handler; if
// recordReplay is true, it appends exactly one audit record documenting
// that the replay ran. An optional metrics registry (at most one; extras
// are ignored) receives one ObserveReplayFinding count per finding kind
// surfaced.
func Replay(registry *plan.Registry, log *audit.Log, planHash string, filters Filters, recordReplay bool, metricsReg ...*metrics.Registry) (Verdict, error) {
	var findings []Finding
	var reg *metrics.Registry
	if len(metricsReg) > 0 {
		reg = metricsReg[0]
	}
	defer func() {
		for _, f := range findings {
			reg.ObserveReplayFinding(string(f.Kind))
		}
	}()

	records, readErr := log.ReadAll()
	if readErr != nil {
		if gkerrors.Is(readErr, gkerrors.CodeAuditChainBroken) {
			findings = append(findings, Finding{Kind: KindTamperInvalidJSON, Detail: readErr.Error()})
			return newVerdict(findings), nil
		}
		return Verdict{}, readErr
	}

	chainResult, err := log.VerifyChain()
	if err != nil {
		return Verdict{}, err
	}
	if !chainResult.OK {
		findings = append(findings, tamperFinding(chainResult))
	}

	projected := projectRecords(records, planHash, filters)

	findings = append(findings, determinismFindings(projected)...)

	lookup := registry.Lookup(planHash)
	findings = append(findings, authorityFindings(projected, lookup)...)
	findings = append(findings, policyFindings(projected)...)
	findings = append(findings, evidenceGapFindings(projected, lookup)...)

	verdict := newVerdict(findings)

	if recordReplay {
		if err := recordReplayPerformed(log, planHash, verdict); err != nil {
			return verdict, err
		}
	}

	return verdict, nil
}

func projectRecords(records []audit.Record, planHash string, filters Filters) []audit.Record {
	var out []audit.Record
	for _, r := range records {
		if r.PlanHash != planHash {
			continue
		}
		if !filters.matches(r.PhaseID, r.Tool, r.Seq) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// determinismFindings groups projected records by (tool, phase, args_hash)
// and flags any group whose result_hash values disagree (spec §4.8
// "Determinism").
func determinismFindings(records []audit.Record) []Finding {
	type key struct{ tool, phase, argsHash string }
	groups := make(map[key][]audit.Record)
	for _, r := range records {
		k := key{tool: r.Tool, phase: r.PhaseID, argsHash: r.ArgsHash}
		groups[k] = append(groups[k], r)
	}

	var findings []Finding
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		first := group[0].ResultHash
		var diverging []uint64
		for _, r := range group[1:] {
			if r.ResultHash != first {
				diverging = append(diverging, r.Seq)
			}
		}
		if len(diverging) > 0 {
			findings = append(findings, Finding{
				Kind:   KindDivergence,
				Seqs:   append([]uint64{group[0].Seq}, diverging...),
				Detail: "result_hash diverges across records sharing tool, phase, and args_hash",
			})
		}
	}
	return findings
}

// authorityFindings flags mutating records whose plan is missing/not
// approved, or whose declared phase the plan does not enumerate (spec
// §4.8 "Authority").
func authorityFindings(records []audit.Record, lookup plan.LookupResult) []Finding {
	var findings []Finding
	planApproved := lookup.Hit && lookup.Plan.IsApproved()

	for _, r := range records {
		if !mutatingTools[r.Tool] {
			continue
		}
		if !planApproved {
			findings = append(findings, Finding{
				Kind:   KindAuthorityUnapproved,
				Seqs:   []uint64{r.Seq},
				Detail: "mutating record cites a plan hash that is not present or not approved",
			})
			continue
		}
		if r.PhaseID != "" && !lookup.Plan.DeclaresPhase(r.PhaseID) {
			findings = append(findings, Finding{
				Kind:   KindAuthorityPhase,
				Seqs:   []uint64{r.Seq},
				Detail: "record's phase_id is not among the plan's declared phases: " + r.PhaseID,
			})
		}
	}
	return findings
}

// policyFindings surfaces records whose error_code is in the
// policy-blocked family as policy violations rather than executions.
func policyFindings(records []audit.Record) []Finding {
	var findings []Finding
	for _, r := range records {
		if r.ErrorCode != "" && policyBlockedCodes[r.ErrorCode] {
			findings = append(findings, Finding{
				Kind:   KindPolicyViolation,
				Seqs:   []uint64{r.Seq},
				Detail: r.ErrorCode,
			})
		}
	}
	return findings
}

// evidenceGapFindings flags plan-declared phases with no corresponding
// successful record in the projection (spec §4.8 "Evidence gap").
func evidenceGapFindings(records []audit.Record, lookup plan.LookupResult) []Finding {
	if !lookup.Hit || !lookup.Plan.DeclaresPhases() {
		return nil
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if r.ErrorCode == "" {
			seen[r.PhaseID] = true
		}
	}
	var findings []Finding
	for _, ph := range lookup.Plan.Header.Phases {
		if !seen[ph] {
			findings = append(findings, Finding{
				Kind:   KindEvidenceGap,
				Detail: "no successful record found for declared phase: " + ph,
			})
		}
	}
	return findings
}

// recordReplayPerformed appends the single audit record the engine is
// permitted to write (spec §4.8: "it may append a single audit record
// documenting that the replay was performed").
func recordReplayPerformed(log *audit.Log, planHash string, verdict Verdict) error {
	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to serialize replay verdict for audit record", err)
	}
	_, err = log.Append(audit.Event{
		Tool:       "replay_execution",
		Intent:     "replay",
		PlanHash:   planHash,
		ResultHash: audit.HashBytes(verdictJSON),
	})
	return err
}
