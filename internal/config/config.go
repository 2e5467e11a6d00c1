// Package config provides configuration management for the gatekeeper.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (GATEKEEPER_*)
// 3. Project config (.gatekeeper/config.yaml in cwd)
// 4. Home config (~/.gatekeeper/config.yaml)
// 5. Defaults
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gatekeeper configuration.
type Config struct {
	// Output controls the default output format (table, json, markdown).
	Output string `yaml:"output" json:"output"`

	// Workspace is the workspace root to lock via pathauth.Authority.Lock.
	// Empty means "current working directory".
	Workspace string `yaml:"workspace" json:"workspace"`

	// Role is the session role a command begins with (executor, planner
	// — see internal/session).
	Role string `yaml:"role" json:"role"`

	// Verbose enables verbose diagnostic output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Preflight settings
	Preflight PreflightConfig `yaml:"preflight" json:"preflight"`

	// Bootstrap settings
	Bootstrap BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// PreflightConfig holds the externally configured post-write verification
// command (spec §4.6): the core never infers or invents one.
type PreflightConfig struct {
	// Command is the executable name or path run after a write is
	// materialized and before it is committed final.
	Command string `yaml:"command" json:"command"`

	// Args are the arguments passed to Command.
	Args []string `yaml:"args" json:"args"`

	// TimeoutSeconds bounds how long the command may run before the write
	// is reverted as CodePreflightTimeout.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the configured preflight timeout as a time.Duration.
func (p PreflightConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// BootstrapConfig holds where the first-approved-plan bootstrap secret
// material comes from (spec §4.4). The raw secret is never stored in this
// struct or on disk by the config loader; only its location is.
type BootstrapConfig struct {
	// SecretPath is a file containing the raw bootstrap secret bytes.
	SecretPath string `yaml:"secret_path" json:"secret_path"`

	// SecretEnv is an environment variable name holding the raw bootstrap
	// secret, checked if SecretPath is empty.
	SecretEnv string `yaml:"secret_env" json:"secret_env"`
}

// MetricsConfig controls whether and where the in-process metrics
// registry is exposed (SPEC_FULL.md domain-stack: "no HTTP listener is
// part of the core").
type MetricsConfig struct {
	// Addr is the listen address for `gatekeeper serve --metrics-addr`.
	// Empty disables the metrics HTTP listener.
	Addr string `yaml:"addr" json:"addr"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput               = "table"
	defaultPreflightCommand     = "true"
	defaultPreflightTimeoutSecs = 30
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		Role:    "executor",
		Verbose: false,
		Preflight: PreflightConfig{
			Command:        defaultPreflightCommand,
			TimeoutSeconds: defaultPreflightTimeoutSecs,
		},
		Bootstrap: BootstrapConfig{
			SecretEnv: "GATEKEEPER_BOOTSTRAP_SECRET",
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gatekeeper", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("GATEKEEPER_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".gatekeeper", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("GATEKEEPER_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("GATEKEEPER_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("GATEKEEPER_ROLE"); v != "" {
		cfg.Role = v
	}
	if v := os.Getenv("GATEKEEPER_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("GATEKEEPER_PREFLIGHT_COMMAND"); v != "" {
		cfg.Preflight.Command = v
	}
	if v := os.Getenv("GATEKEEPER_PREFLIGHT_TIMEOUT_SECONDS"); v != "" {
		if secs, err := parsePositiveInt(v); err == nil {
			cfg.Preflight.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("GATEKEEPER_BOOTSTRAP_SECRET_PATH"); v != "" {
		cfg.Bootstrap.SecretPath = v
	}
	if v := os.Getenv("GATEKEEPER_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg
}

// errNotPositive is returned by parsePositiveInt for a zero or negative
// value; a zero preflight timeout would make every write fail
// CodePreflightTimeout immediately, so it's rejected rather than applied.
var errNotPositive = errors.New("value is not a positive integer")

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errNotPositive
	}
	return n, nil
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.Workspace != "" {
		dst.Workspace = src.Workspace
	}
	if src.Role != "" {
		dst.Role = src.Role
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.Preflight.Command != "" {
		dst.Preflight.Command = src.Preflight.Command
	}
	if len(src.Preflight.Args) > 0 {
		dst.Preflight.Args = src.Preflight.Args
	}
	if src.Preflight.TimeoutSeconds != 0 {
		dst.Preflight.TimeoutSeconds = src.Preflight.TimeoutSeconds
	}
	if src.Bootstrap.SecretPath != "" {
		dst.Bootstrap.SecretPath = src.Bootstrap.SecretPath
	}
	if src.Bootstrap.SecretEnv != "" {
		dst.Bootstrap.SecretEnv = src.Bootstrap.SecretEnv
	}
	if src.Metrics.Addr != "" {
		dst.Metrics.Addr = src.Metrics.Addr
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.gatekeeper/config.yaml"
	SourceProject Source = ".gatekeeper/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// resolved pairs a value with the layer that supplied it, for diagnostics.
type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output           resolved `json:"output"`
	Workspace        resolved `json:"workspace"`
	Role             resolved `json:"role"`
	Verbose          resolved `json:"verbose"`
	PreflightCommand resolved `json:"preflight_command"`
	PreflightTimeout resolved `json:"preflight_timeout_seconds"`
}

func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagWorkspace, flagRole string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeWorkspace, homeRole, homePreflightCmd string
	var homeVerbose bool
	var homePreflightTimeout int
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeWorkspace = homeConfig.Workspace
		homeRole = homeConfig.Role
		homeVerbose = homeConfig.Verbose
		homePreflightCmd = homeConfig.Preflight.Command
		homePreflightTimeout = homeConfig.Preflight.TimeoutSeconds
	}

	var projectOutput, projectWorkspace, projectRole, projectPreflightCmd string
	var projectVerbose bool
	var projectPreflightTimeout int
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectWorkspace = projectConfig.Workspace
		projectRole = projectConfig.Role
		projectVerbose = projectConfig.Verbose
		projectPreflightCmd = projectConfig.Preflight.Command
		projectPreflightTimeout = projectConfig.Preflight.TimeoutSeconds
	}

	envOutput := os.Getenv("GATEKEEPER_OUTPUT")
	envWorkspace := os.Getenv("GATEKEEPER_WORKSPACE")
	envRole := os.Getenv("GATEKEEPER_ROLE")
	envVerboseRaw := os.Getenv("GATEKEEPER_VERBOSE")
	envVerbose := envVerboseRaw == "true" || envVerboseRaw == "1"
	envPreflightCmd := os.Getenv("GATEKEEPER_PREFLIGHT_COMMAND")
	envPreflightTimeout := 0
	if v := os.Getenv("GATEKEEPER_PREFLIGHT_TIMEOUT_SECONDS"); v != "" {
		if secs, err := parsePositiveInt(v); err == nil {
			envPreflightTimeout = secs
		}
	}

	rc := &ResolvedConfig{
		Output:    resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		Workspace: resolveStringField(homeWorkspace, projectWorkspace, envWorkspace, flagWorkspace, ""),
		Role:      resolveStringField(homeRole, projectRole, envRole, flagRole, "executor"),
		Verbose:   resolved{Value: false, Source: SourceDefault},
		PreflightCommand: resolveStringField(homePreflightCmd, projectPreflightCmd, envPreflightCmd, "",
			defaultPreflightCommand),
		PreflightTimeout: resolved{Value: defaultPreflightTimeoutSecs, Source: SourceDefault},
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	if homePreflightTimeout != 0 {
		rc.PreflightTimeout = resolved{Value: homePreflightTimeout, Source: SourceHome}
	}
	if projectPreflightTimeout != 0 {
		rc.PreflightTimeout = resolved{Value: projectPreflightTimeout, Source: SourceProject}
	}
	if envPreflightTimeout != 0 {
		rc.PreflightTimeout = resolved{Value: envPreflightTimeout, Source: SourceEnv}
	}

	return rc
}
