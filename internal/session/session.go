// Package session holds the process-scoped governance state: the locked
// workspace root, the fixed role, and the prompt-gate flag. A Session
// replaces the module-global state the teacher's CLI keeps in package-level
// variables (see cmd/gatekeeper/root.go's verbose flag global) with an
// explicit value threaded through every call, per the module-global redesign
// flag: initialization is a constructor call, not a process-global side
// effect.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/pathauth"
)

// Role is the fixed launch-time identity of a process.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleExecutor Role = "executor"
)

// IsValid reports whether r is a recognized role.
func (r Role) IsValid() bool {
	return r == RolePlanner || r == RoleExecutor
}

// CanWrite reports whether the role may execute write_file.
func (r Role) CanWrite() bool {
	return r == RoleExecutor
}

// CanAuthorPlan reports whether the role may register new plans.
func (r Role) CanAuthorPlan() bool {
	return r == RolePlanner
}

// PromptName is one of the closed set of prompt names the prompt gate accepts.
type PromptName string

const (
	PromptPlannerBriefing  PromptName = "planner-briefing"
	PromptExecutorBriefing PromptName = "executor-briefing"
)

// promptsByRole restricts which prompt names are valid for which role.
var promptsByRole = map[Role]map[PromptName]bool{
	RolePlanner:  {PromptPlannerBriefing: true},
	RoleExecutor: {PromptExecutorBriefing: true},
}

// IsValidFor reports whether name is a valid prompt for role.
func IsValidFor(role Role, name PromptName) bool {
	set, ok := promptsByRole[role]
	if !ok {
		return false
	}
	return set[name]
}

// Session is process-scoped state created exactly once by begin_session.
// No exported method may be called successfully before Begin succeeds,
// except pre-session audit buffering which the audit package handles on
// its own.
type Session struct {
	mu sync.RWMutex

	id           string
	workspaceRoot string
	role         Role
	promptFetched bool
	paths        *pathauth.Authority
	begun        bool
}

// New constructs an uninitialized Session bound to a fixed role. The role is
// fixed per process by launch configuration (spec §3) and never changes
// after construction.
func New(role Role) *Session {
	return &Session{role: role}
}

// Begin locks the workspace root exactly once. Calling Begin twice is an
// error (SESSION_ALREADY_INITIALIZED); calling it with an invalid root
// surfaces the path-authority rejection unchanged.
func (s *Session) Begin(workspaceRoot string) (*pathauth.Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begun {
		return nil, gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionAlreadyInit,
			"session already initialized")
	}

	authority := pathauth.New()
	if err := authority.Lock(workspaceRoot); err != nil {
		return nil, err
	}

	s.paths = authority
	s.workspaceRoot = authority.Root()
	s.id = uuid.NewString()
	s.begun = true
	return authority, nil
}

// RequireInitialized returns SESSION_NOT_INITIALIZED unless Begin has
// already succeeded. Every tool handler except begin_session calls this
// first.
func (s *Session) RequireInitialized() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.begun {
		return gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionNotInitialized,
			"begin_session must be called before any other tool")
	}
	return nil
}

// RequirePromptGate returns SESSION_PROMPT_GATE_LOCKED unless read_prompt has
// been satisfied for this session. Only write_file enforces the gate.
func (s *Session) RequirePromptGate() error {
	if err := s.RequireInitialized(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.promptFetched {
		return gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSessionPromptGateLock,
			"read_prompt has not been satisfied for this session")
	}
	return nil
}

// FetchPrompt records that the session satisfied the prompt gate by
// requesting a prompt name valid for its role. It returns the canonical
// prompt text lookup is the caller's responsibility (prompt text is outside
// the core's invariants — see spec §6).
func (s *Session) FetchPrompt(name PromptName) error {
	if err := s.RequireInitialized(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !IsValidFor(s.role, name) {
		return gkerrors.New(gkerrors.PhaseSession, gkerrors.CodeSchemaInvalid,
			"prompt name not valid for role "+string(s.role))
	}
	s.promptFetched = true
	return nil
}

// ID returns the session identifier, empty before Begin.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Role returns the fixed role for this process.
func (s *Session) Role() Role {
	return s.role
}

// WorkspaceRoot returns the locked root, empty before Begin.
func (s *Session) WorkspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceRoot
}

// Paths returns the locked path authority, nil before Begin.
func (s *Session) Paths() *pathauth.Authority {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paths
}

// Begun reports whether Begin has already succeeded.
func (s *Session) Begun() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.begun
}
