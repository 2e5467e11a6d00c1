package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These exercise the same Load/Resolve surface as the rest of this
// package's tests but via testify assertions, matching how the wider
// governance-tooling corpus tests its config packages.

func TestLoadDefaultsAssert(t *testing.T) {
	t.Setenv("GATEKEEPER_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))
	for _, key := range []string{"GATEKEEPER_OUTPUT", "GATEKEEPER_WORKSPACE", "GATEKEEPER_ROLE", "GATEKEEPER_VERBOSE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, "executor", cfg.Role)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "true", cfg.Preflight.Command)
}

func TestLoadFlagOverridesAssert(t *testing.T) {
	t.Setenv("GATEKEEPER_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))
	t.Setenv("GATEKEEPER_OUTPUT", "")

	cfg, err := Load(&Config{Output: "json", Role: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "reviewer", cfg.Role)
}

func TestResolveSourcesAssert(t *testing.T) {
	t.Setenv("GATEKEEPER_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))
	t.Setenv("GATEKEEPER_OUTPUT", "json")

	rc := Resolve("", "", "", false)
	assert.Equal(t, "json", rc.Output.Value)
	assert.Equal(t, SourceEnv, rc.Output.Source)
}
