// Package preflight runs the repository-configured post-write verification
// command before a write is accepted as final (spec §4.6). The command is
// loaded from configuration; this package never infers or invents one.
package preflight

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
	"github.com/boshu2/gatekeeper/internal/metrics"
)

// Command is the opaque, externally configured command specification.
type Command struct {
	Name    string
	Args    []string
	Env     []string // additional "KEY=VALUE" entries merged onto the child's environment
	Timeout time.Duration
}

// Result captures everything a preflight run produced, regardless of
// outcome, so partial output is available for rejection payloads (spec
// §4.6 "Partial output is retained regardless of outcome").
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	TimedOut   bool
	DurationMS int64
}

// Success reports whether the run should be treated as passing: zero exit
// status within the configured timeout.
func (r Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Runner executes Command against a working root. The timeout is enforced
// by the OS via exec.CommandContext, which kills the process, not by
// cooperative cancellation (spec §4.6). No other resource limit (memory,
// CPU, file descriptors) is applied to the command; only its captured
// output is capped (see maxCapturedOutputBytes).
type Runner struct {
	metrics *metrics.Registry
}

// NewRunner returns a Runner. It carries no state beyond an optional
// metrics registry; each Run call is otherwise independent.
func NewRunner() *Runner {
	return &Runner{}
}

// WithMetrics attaches a metrics registry that every subsequent Run
// reports preflight duration and outcome to. Returns r for chaining.
func (r *Runner) WithMetrics(reg *metrics.Registry) *Runner {
	r.metrics = reg
	return r
}

// Run executes cmd with workingRoot as its working directory.
func (r *Runner) Run(ctx context.Context, workingRoot string, cmd Command) (Result, error) {
	if cmd.Name == "" {
		return Result{}, gkerrors.New(gkerrors.PhasePreflight, gkerrors.CodePreflightFailed,
			"no preflight command configured")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	execCmd.Dir = workingRoot
	if len(cmd.Env) > 0 {
		execCmd.Env = append(execCmd.Environ(), cmd.Env...)
	}

	var stdout, stderr limitedBuffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	start := time.Now()
	runErr := execCmd.Run()
	elapsed := time.Since(start)

	result := Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: elapsed.Milliseconds(),
	}
	defer func() {
		r.metrics.ObservePreflight(result.Success(), elapsed.Seconds())
	}()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, gkerrors.New(gkerrors.PhasePreflight, gkerrors.CodePreflightTimeout,
			"preflight command exceeded its timeout").WithInvariant("I-PREFLIGHT-BOUNDED")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The command never started (e.g. not found): no exit code to
			// report, but stdout/stderr captured so far are still returned.
			return result, gkerrors.Wrap(gkerrors.PhasePreflight, gkerrors.CodePreflightFailed,
				"failed to execute preflight command", runErr)
		}
	}

	if !result.Success() {
		return result, gkerrors.New(gkerrors.PhasePreflight, gkerrors.CodePreflightFailed,
			"preflight command exited non-zero")
	}
	return result, nil
}
