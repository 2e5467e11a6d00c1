package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/boshu2/gatekeeper/internal/audit"
	"github.com/boshu2/gatekeeper/internal/config"
	"github.com/boshu2/gatekeeper/internal/format"
	"github.com/boshu2/gatekeeper/internal/gate"
	"github.com/boshu2/gatekeeper/internal/metrics"
	"github.com/boshu2/gatekeeper/internal/pathauth"
	"github.com/boshu2/gatekeeper/internal/plan"
	"github.com/boshu2/gatekeeper/internal/preflight"
	"github.com/boshu2/gatekeeper/internal/session"
)

// pipeline bundles everything a one-shot CLI invocation needs after a
// session has begun: the locked path authority, the plan registry, the
// audit log, and a Gate wired to run write requests through G1-G10.
type pipeline struct {
	Config   *config.Config
	Session  *session.Session
	Paths    *pathauth.Authority
	Registry *plan.Registry
	Audit    *audit.Log
	Gate     *gate.Gate
	Metrics  *metrics.Registry
}

// resolveWorkspaceRoot picks the workspace root by the same precedence the
// rest of the CLI uses for configuration: flag, then config value, then
// the current working directory.
func resolveWorkspaceRoot(cfg *config.Config) (string, error) {
	root := GetWorkspace()
	if root == "" {
		root = cfg.Workspace
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		root = cwd
	}
	return filepath.Abs(root)
}

// resolveRole picks the session role the same way: flag, then config,
// falling back to executor (internal/config.Default's own default).
func resolveRole(cfg *config.Config) session.Role {
	r := GetRole()
	if r == "" {
		r = cfg.Role
	}
	return session.Role(r)
}

// wirePipeline loads configuration, begins a session against the resolved
// workspace root, and opens the registry and audit log under it. It is
// the single wiring point every cmd/gatekeeper subcommand that touches the
// admission pipeline goes through.
func wirePipeline() (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	root, err := resolveWorkspaceRoot(cfg)
	if err != nil {
		return nil, err
	}

	role := resolveRole(cfg)
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q: want executor or planner", role)
	}

	sess := session.New(role)
	authority, err := sess.Begin(root)
	if err != nil {
		return nil, err
	}

	registry, err := plan.Open(filepath.Join(authority.Root(), pathauth.MarkerDirName))
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(authority.Root())
	if err != nil {
		return nil, err
	}

	metricsReg := metrics.New()
	runner := preflight.NewRunner().WithMetrics(metricsReg)
	preflightCmd := preflight.Command{
		Name:    cfg.Preflight.Command,
		Args:    cfg.Preflight.Args,
		Timeout: cfg.Preflight.Timeout(),
	}
	g := gate.New(sess, registry, auditLog, runner, preflightCmd).WithMetrics(metricsReg)

	return &pipeline{
		Config:   cfg,
		Session:  sess,
		Paths:    authority,
		Registry: registry,
		Audit:    auditLog,
		Gate:     g,
		Metrics:  metricsReg,
	}, nil
}

// emitEnvelope renders env through the formatter named by -o/--output to
// stdout. If env carries a rejection, emitEnvelope still renders it in
// full before returning an error, so the caller's exit code reflects the
// rejection without duplicating its message (root.go's Execute prints
// the returned error once, to stderr).
func emitEnvelope(env format.Envelope) error {
	f, err := format.ByName(GetOutput())
	if err != nil {
		return err
	}
	if err := f.Format(os.Stdout, env); err != nil {
		return err
	}
	if env.Err != nil {
		return fmt.Errorf("%s: %s", env.Err.Code, env.Err.Message)
	}
	return nil
}
