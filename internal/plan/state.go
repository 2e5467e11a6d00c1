package plan

import (
	"encoding/json"
	"os"
	"time"

	"github.com/boshu2/gatekeeper/internal/atomicfile"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// StateFileName is the governance-state file co-located with the plans
// directory.
const StateFileName = "governance-state.json"

// IndexEntry is the registry's view of one plan: spec §3 "mapping from
// plan hash -> {status, created_at, scope, file_path, verified}".
type IndexEntry struct {
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Scope     []string  `json:"scope"`
	FilePath  string    `json:"file_path"`
	Verified  bool      `json:"verified"`
}

// State is the persisted governance state (spec §3 "Governance State").
type State struct {
	BootstrapEnabled     bool                  `json:"bootstrap_enabled"`
	BootstrapCompletedAt *time.Time            `json:"bootstrap_completed_at,omitempty"`
	ApprovedPlansCount   int                   `json:"approved_plans_count"`
	AutoRegister         bool                  `json:"auto_register"`
	PlanIndex            map[string]IndexEntry `json:"plan_index"`
}

// defaultState is what load() synthesizes when no state file exists yet
// (spec §4.3 "if missing, initializes defaults with bootstrap_enabled=true
// and an empty index").
func defaultState() State {
	return State{
		BootstrapEnabled: true,
		AutoRegister:     true,
		PlanIndex:        make(map[string]IndexEntry),
	}
}

// loadState reads the governance-state file, or returns defaults if it
// does not exist yet.
func loadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultState(), nil
	}
	if err != nil {
		return State{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to read governance state", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"governance state file is not valid JSON", err)
	}
	if s.PlanIndex == nil {
		s.PlanIndex = make(map[string]IndexEntry)
	}
	return s, nil
}

// saveState writes the governance-state file atomically: staged to a temp
// file and renamed, so a torn write leaves the previous state intact
// (spec §4.3).
func saveState(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to marshal governance state", err)
	}
	if err := atomicfile.WriteBytes(path, data); err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to write governance state", err)
	}
	return nil
}
