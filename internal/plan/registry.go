package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/boshu2/gatekeeper/internal/atomicfile"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/worker"
)

// reconcileProgressThreshold is the plan count above which Reconcile
// reports progress to stderr; small directories finish before a bar would
// even render.
const reconcileProgressThreshold = 25

// PlansDirName is the directory, under the workspace root's governance
// marker directory, holding the content-addressed plan files.
const PlansDirName = "plans"

// MissReason enumerates why lookup failed to find a current authority,
// rather than returning a single generic "not found".
type MissReason string

const (
	MissNotIndexed     MissReason = "NOT_INDEXED"
	MissFileMissing    MissReason = "FILE_MISSING"
	MissHashMismatch   MissReason = "HASH_MISMATCH"
	MissStatusWeakened MissReason = "STATUS_WEAKENED"
)

// LookupResult is returned by Lookup: either a hit (Plan populated) or a
// structured miss.
type LookupResult struct {
	Hit    bool
	Entry  IndexEntry
	Plan   Plan
	Reason MissReason
}

// Registry owns the governance-state file and the plans directory for one
// locked workspace root.
type Registry struct {
	mu        sync.Mutex
	plansDir  string
	statePath string
	state     State
	loaded    bool
}

// Open binds a Registry to governanceDir (typically
// "<root>/.gatekeeper"), calling Load to prime state.
func Open(governanceDir string) (*Registry, error) {
	r := &Registry{
		plansDir:  filepath.Join(governanceDir, PlansDirName),
		statePath: filepath.Join(governanceDir, StateFileName),
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads the governance-state file, initializing defaults if absent
// (spec §4.3 load()).
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := loadState(r.statePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.plansDir, 0o755); err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to create plans directory", err)
	}
	r.state = s
	r.loaded = true
	return nil
}

// State returns a copy of the current governance state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Lookup resolves a plan hash to its registry entry and parsed content, or
// a structured miss reason (spec §4.3 lookup()).
func (r *Registry) Lookup(hash string) LookupResult {
	r.mu.Lock()
	entry, indexed := r.state.PlanIndex[hash]
	r.mu.Unlock()

	if !indexed {
		return LookupResult{Hit: false, Reason: MissNotIndexed}
	}

	content, err := os.ReadFile(filepath.Join(r.plansDir, FileName(hash)))
	if err != nil {
		return LookupResult{Hit: false, Entry: entry, Reason: MissFileMissing}
	}

	if Hash(content) != hash {
		return LookupResult{Hit: false, Entry: entry, Reason: MissHashMismatch}
	}

	p, err := Parse(content)
	if err != nil {
		return LookupResult{Hit: false, Entry: entry, Reason: MissHashMismatch}
	}
	if entry.Status == StatusApproved && p.Header.Status != StatusApproved {
		return LookupResult{Hit: false, Entry: entry, Plan: p, Reason: MissStatusWeakened}
	}

	return LookupResult{Hit: true, Entry: entry, Plan: p}
}

// Register validates and writes a new plan (spec §4.3 register()). It
// refuses when status is not APPROVED, when linting fails, or when
// bootstrap policy forbids registration outside the bootstrap channel
// (callers attempting the very first plan must go through
// internal/bootstrap instead).
func (r *Registry) Register(content []byte) (Plan, error) {
	p, err := Parse(content)
	if err != nil {
		return Plan{}, err
	}
	if !p.IsApproved() {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanStatusNotApproved,
			"plan must declare status APPROVED to be registered")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.BootstrapEnabled && r.state.ApprovedPlansCount == 0 {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodeBootstrapDisabled,
			"registry is empty; the first plan must enter through bootstrap")
	}
	if _, exists := r.state.PlanIndex[p.Hash]; exists {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanAlreadyRegistered,
			"plan hash already registered: "+p.Hash)
	}

	filePath := filepath.Join(r.plansDir, FileName(p.Hash))
	if err := atomicfile.WriteBytes(filePath, content); err != nil {
		return Plan{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to write plan file", err)
	}

	entry := IndexEntry{
		Status:    p.Header.Status,
		CreatedAt: p.Header.CreatedAt,
		Scope:     p.Header.Scope,
		FilePath:  filePath,
		Verified:  true,
	}
	r.state.PlanIndex[p.Hash] = entry
	r.state.ApprovedPlansCount++

	if err := saveState(r.statePath, r.state); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// ReconcileReport summarizes the outcome of Reconcile.
type ReconcileReport struct {
	AutoAdded  []string
	Mismatched []string
}

// Reconcile scans the plans directory; for each ".md" file it verifies the
// filename matches the content hash and the indexed entry, auto-adding
// when auto_register permits and flagging mismatches otherwise (spec §4.3
// reconcile()). Hash verification across files runs concurrently via the
// shared worker pool.
func (r *Registry) Reconcile() (ReconcileReport, error) {
	entries, err := os.ReadDir(r.plansDir)
	if err != nil {
		return ReconcileReport{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to list plans directory", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	type verified struct {
		name string
		p    Plan
		err  error
	}

	pool := worker.NewPool[verified](0)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(r.plansDir, n)
	}

	var bar *progressbar.ProgressBar
	if len(paths) > reconcileProgressThreshold {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("reconciling plans"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := pool.Process(paths, func(path string) (verified, error) {
		if bar != nil {
			_ = bar.Add(1)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return verified{name: filepath.Base(path), err: err}, nil
		}
		claimedHash := strings.TrimSuffix(filepath.Base(path), ".md")
		actualHash := Hash(content)
		if claimedHash != actualHash {
			return verified{name: filepath.Base(path), err: fmt.Errorf("filename hash %s does not match content hash %s", claimedHash, actualHash)}, nil
		}
		p, err := Parse(content)
		return verified{name: filepath.Base(path), p: p, err: err}, nil
	})
	if bar != nil {
		_ = bar.Finish()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var report ReconcileReport
	for _, res := range results {
		v := res.Value
		if v.err != nil {
			report.Mismatched = append(report.Mismatched, v.name)
			continue
		}
		if _, indexed := r.state.PlanIndex[v.p.Hash]; indexed {
			continue
		}
		if !r.state.AutoRegister {
			report.Mismatched = append(report.Mismatched, v.name)
			continue
		}
		r.state.PlanIndex[v.p.Hash] = IndexEntry{
			Status:    v.p.Header.Status,
			CreatedAt: v.p.Header.CreatedAt,
			Scope:     v.p.Header.Scope,
			FilePath:  filepath.Join(r.plansDir, v.name),
			Verified:  true,
		}
		if v.p.IsApproved() {
			r.state.ApprovedPlansCount++
		}
		report.AutoAdded = append(report.AutoAdded, v.name)
	}

	if len(report.AutoAdded) > 0 {
		if err := saveState(r.statePath, r.state); err != nil {
			return report, err
		}
	}
	return report, nil
}

// CompleteBootstrap atomically registers the first plan and disables
// bootstrap, used exclusively by internal/bootstrap on a successful
// bootstrap attempt.
func (r *Registry) CompleteBootstrap(content []byte) (Plan, error) {
	p, err := Parse(content)
	if err != nil {
		return Plan{}, err
	}
	if !p.IsApproved() {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodePlanStatusNotApproved,
			"bootstrap plan must declare status APPROVED")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// bootstrap_enabled is checked first and unconditionally: once a
	// bootstrap has completed, every later call is rejected, including one
	// repeating the exact content that already succeeded. There is no
	// in-process way to distinguish "the original caller retrying after a
	// dropped response" from "a captured request replayed later" once this
	// gate has flipped, so no content identity exception is carved out here.
	if !r.state.BootstrapEnabled {
		return Plan{}, gkerrors.New(gkerrors.PhasePlan, gkerrors.CodeBootstrapDisabled,
			"bootstrap already completed; there is no mechanism to re-enable it")
	}

	filePath := filepath.Join(r.plansDir, FileName(p.Hash))
	if err := atomicfile.WriteBytes(filePath, content); err != nil {
		return Plan{}, gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodePlanBrokenReference,
			"failed to write bootstrap plan file", err)
	}

	now := time.Now().UTC()
	r.state.PlanIndex[p.Hash] = IndexEntry{
		Status:    p.Header.Status,
		CreatedAt: p.Header.CreatedAt,
		Scope:     p.Header.Scope,
		FilePath:  filePath,
		Verified:  true,
	}
	r.state.ApprovedPlansCount = 1
	r.state.BootstrapEnabled = false
	r.state.BootstrapCompletedAt = &now

	if err := saveState(r.statePath, r.state); err != nil {
		return Plan{}, err
	}
	return p, nil
}
