package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/config"
)

var (
	// Global flags, mirroring the teacher's package-level cobra flag vars
	// (see internal/session's doc comment: this is launch configuration,
	// never session state — the Session constructed per-command is the
	// single source of truth once a command actually begins running).
	flagWorkspace string
	flagRole      string
	flagOutput    string
	flagConfig    string
	flagVerbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Governance gateway for AI coding agent writes",
	Long: `gatekeeper brokers every write an AI coding agent makes to a workspace
through an admission pipeline: session and path authority, plan-backed
write authorization, content policy, a post-write preflight check, and a
hash-chained audit log.

Core Commands:
  session begin   Lock a workspace root and start a governed session
  write           Submit a write request through the admission pipeline
  read            Read a file via the locked path authority
  plans           List or reconcile the plan registry
  bootstrap       Register the first plan into an empty registry
  replay          Re-derive a verdict from the audit log for one plan
  audit           Inspect or verify the audit log
  maturity        Read-only coverage/maturity snapshot
  serve           Run the JSON-RPC-over-stdio host adapter`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "Workspace root to lock (default: config, then cwd)")
	rootCmd.PersistentFlags().StringVar(&flagRole, "role", "", "Session role (executor, planner)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output format (table, json, markdown)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path override")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose diagnostic output")
}

// GetWorkspace returns the --workspace flag value.
func GetWorkspace() string { return flagWorkspace }

// GetRole returns the --role flag value.
func GetRole() string { return flagRole }

// GetOutput returns the -o/--output flag value.
func GetOutput() string { return flagOutput }

// GetConfigFile returns the --config flag value.
func GetConfigFile() string { return flagConfig }

// GetVerbose returns the -v/--verbose flag value.
func GetVerbose() bool { return flagVerbose }

// VerbosePrintf prints only when verbose mode is enabled, writing to
// stderr so it never contaminates an envelope written to stdout.
func VerbosePrintf(format string, args ...interface{}) {
	if flagVerbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// syncConfigFlagToEnv mirrors --config onto GATEKEEPER_CONFIG so
// internal/config's project-config resolution (which only knows about the
// environment variable) picks up the same override a flag expresses.
func syncConfigFlagToEnv() {
	if flagConfig != "" {
		_ = os.Setenv("GATEKEEPER_CONFIG", flagConfig)
	}
}

// loadConfig resolves configuration with command-line flags taking
// highest precedence, per internal/config.Load's documented priority
// order.
func loadConfig() (*config.Config, error) {
	syncConfigFlagToEnv()
	overrides := &config.Config{
		Output:    flagOutput,
		Workspace: flagWorkspace,
		Role:      flagRole,
		Verbose:   flagVerbose,
	}
	return config.Load(overrides)
}
