package preflight

import (
	"context"
	"testing"
	"time"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

func TestRunSuccess(t *testing.T) {
	r := NewRunner()
	result, err := r.Run(context.Background(), t.TempDir(), Command{
		Name: "true",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewRunner()
	result, err := r.Run(context.Background(), t.TempDir(), Command{
		Name: "false",
	})
	if !gkerrors.Is(err, gkerrors.CodePreflightFailed) {
		t.Fatalf("expected CodePreflightFailed, got %v", err)
	}
	if result.Success() {
		t.Fatal("expected non-success result")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	r := NewRunner()
	result, err := r.Run(context.Background(), t.TempDir(), Command{
		Name: "echo",
		Args: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "hello\n" {
		t.Fatalf("expected captured stdout %q, got %q", "hello\n", result.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner()
	result, err := r.Run(context.Background(), t.TempDir(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	if !gkerrors.Is(err, gkerrors.CodePreflightTimeout) {
		t.Fatalf("expected CodePreflightTimeout, got %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut to be true")
	}
}

func TestRunMissingCommand(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), t.TempDir(), Command{})
	if !gkerrors.Is(err, gkerrors.CodePreflightFailed) {
		t.Fatalf("expected CodePreflightFailed for empty command, got %v", err)
	}
}
