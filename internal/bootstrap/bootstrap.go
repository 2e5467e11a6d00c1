// Package bootstrap implements the single channel by which the plan
// registry transitions from empty to non-empty (spec §4.4). A bootstrap
// request must carry a signed payload authenticated with a keyed MAC
// derived from a process-scoped secret; verification is constant-time and
// time-bounded.
package bootstrap

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/plan"
)

// FreshnessWindow is the maximum age of a bootstrap payload's timestamp
// (spec §4.4 "five minutes").
const FreshnessWindow = 5 * time.Minute

// hkdfInfo distinguishes the derived bootstrap MAC key from any other key
// derived from the same secret material elsewhere in the core.
const hkdfInfo = "gatekeeper-bootstrap-mac-v1"

// Payload is the signed bootstrap request body (spec §4.4 step 2).
type Payload struct {
	RepoID    string    `json:"repo_id"`
	Timestamp time.Time `json:"timestamp"`
	Nonce     string    `json:"nonce"`
	Action    string    `json:"action"`
}

// Request is a full bootstrap attempt: the payload, its MAC, and the
// proposed plan content.
type Request struct {
	Payload     Payload
	MAC         []byte
	PlanContent []byte
}

// DeriveKey derives the process-scoped HMAC key from raw secret material
// via HKDF-SHA256, so the raw secret is never used as a MAC key directly
// (spec domain-stack wiring for golang.org/x/crypto).
func DeriveKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"failed to derive bootstrap MAC key", err)
	}
	return key, nil
}

// canonicalPayload serializes Payload with sorted keys and no insignificant
// whitespace, the same canonicalization discipline as the audit chain
// (spec §4.4 "canonical JSON of the payload").
func canonicalPayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
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
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, generic[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ComputeMAC computes HMAC-SHA256 over the canonical JSON of payload using
// key.
func ComputeMAC(key []byte, payload Payload) ([]byte, error) {
	canonical, err := canonicalPayload(payload)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"failed to canonicalize bootstrap payload", err)
	}
	h := hmac.New(sha256.New, key)
	h.Write(canonical)
	return h.Sum(nil), nil
}

// Verify checks req.MAC against key in constant time and rejects payloads
// older than FreshnessWindow relative to now.
func Verify(key []byte, req Request, now time.Time) error {
	expected, err := ComputeMAC(key, req.Payload)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, req.MAC) != 1 {
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"bootstrap payload signature is invalid")
	}
	age := now.Sub(req.Payload.Timestamp)
	if age < 0 {
		age = -age
	}
	if age > FreshnessWindow {
		return gkerrors.New(gkerrors.PhasePlan, gkerrors.CodeBootstrapExpired,
			fmt.Sprintf("bootstrap payload timestamp is %s old, exceeds freshness window of %s", age, FreshnessWindow))
	}
	return nil
}

// Attempt runs the full bootstrap gate sequence (spec §4.4):
//  1. the signed payload must verify (MAC, freshness).
//  2. the proposed plan must parse, declare APPROVED, and pass the same
//     lint the registry itself applies on registration.
//  3. bootstrap_enabled must be true; once a bootstrap has completed, every
//     later attempt is rejected with CodeBootstrapDisabled, including one
//     that repeats the exact content that already succeeded — there is no
//     in-process way to tell a dropped-response retry apart from a replayed
//     request once the gate has flipped.
//  4. on success, the registry writes the plan file, updates state, and
//     disables bootstrap atomically.
//
// Any failure leaves the workspace unchanged. Steps 3 and 4 are both
// Registry.CompleteBootstrap's responsibility, since it is the one place
// that can check and flip state under lock.
func Attempt(registry *plan.Registry, key []byte, req Request, now time.Time) (plan.Plan, error) {
	if err := Verify(key, req, now); err != nil {
		return plan.Plan{}, err
	}

	return registry.CompleteBootstrap(req.PlanContent)
}
