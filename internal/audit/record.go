package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// GenesisHash is the fixed prev_hash value for the first record in a chain:
// 64 zero characters, the same width as a hex-encoded SHA-256 digest.
var GenesisHash = strings.Repeat("0", 64)

// Record is a single hash-chained audit entry (spec §3 Audit Record).
type Record struct {
	Seq           uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	SessionID     string            `json:"session_id"`
	Role          string            `json:"role"`
	WorkspaceRoot string            `json:"workspace_root"`
	Tool          string            `json:"tool"`
	Intent        string            `json:"intent"`
	PlanHash      string            `json:"plan_hash,omitempty"`
	PhaseID       string            `json:"phase_id,omitempty"`
	ArgsHash      string            `json:"args_hash"`
	ResultHash    string            `json:"result_hash"`
	ErrorCode     string            `json:"error_code,omitempty"`
	InvariantID   string            `json:"invariant_id,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	PrevHash      string            `json:"prev_hash"`
	EntryHash     string            `json:"entry_hash"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// canonicalRecord is Record without EntryHash, used as the hashing input.
// Marshalling this type and Record both rely on Go's struct-field ordering
// for json.Marshal, which is fixed and deterministic; CanonicalBytes then
// re-sorts the resulting top-level keys lexicographically per spec §6
// ("canonical serialization ... keys sorted lexicographically").
type canonicalRecord struct {
	Seq           uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	SessionID     string            `json:"session_id"`
	Role          string            `json:"role"`
	WorkspaceRoot string            `json:"workspace_root"`
	Tool          string            `json:"tool"`
	Intent        string            `json:"intent"`
	PlanHash      string            `json:"plan_hash,omitempty"`
	PhaseID       string            `json:"phase_id,omitempty"`
	ArgsHash      string            `json:"args_hash"`
	ResultHash    string            `json:"result_hash"`
	ErrorCode     string            `json:"error_code,omitempty"`
	InvariantID   string            `json:"invariant_id,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	PrevHash      string            `json:"prev_hash"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// CanonicalBytes returns the UTF-8 bytes used to compute entry_hash: the
// record (minus entry_hash) serialized as JSON with keys sorted
// lexicographically and no insignificant whitespace (spec §6).
func (r Record) CanonicalBytes() ([]byte, error) {
	cr := canonicalRecord{
		Seq: r.Seq, Timestamp: r.Timestamp, SessionID: r.SessionID, Role: r.Role,
		WorkspaceRoot: r.WorkspaceRoot, Tool: r.Tool, Intent: r.Intent,
		PlanHash: r.PlanHash, PhaseID: r.PhaseID, ArgsHash: r.ArgsHash,
		ResultHash: r.ResultHash, ErrorCode: r.ErrorCode, InvariantID: r.InvariantID,
		Notes: r.Notes, PrevHash: r.PrevHash, Extra: r.Extra,
	}
	raw, err := json.Marshal(cr)
	if err != nil {
		return nil, err
	}
	return sortJSONObjectKeys(raw)
}

// ComputeEntryHash computes H(canonical_serialization(record_without_entry_hash)).
func (r Record) ComputeEntryHash() (string, error) {
	b, err := r.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// sortJSONObjectKeys re-encodes a flat JSON object with lexicographically
// sorted top-level keys and no insignificant whitespace. Nested objects
// (here, only Extra, a map[string]string) are encoded by encoding/json,
// which already sorts map keys, so only the top level needs resorting.
func sortJSONObjectKeys(raw []byte) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, generic[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// HashBytes is a convenience helper used across the core to compute
// content/args/result hashes with the same algorithm as the chain itself.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
