package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/audit"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the governed session for this process",
}

var sessionBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Lock the workspace root and start a governed session",
	Long: `Locks the workspace root (creating the .gatekeeper marker directory if
absent) and reports the session identity that every subsequent command in
this process inherits.

A long-running gatekeeper serve process keeps a single session across many
tool calls; a one-shot CLI invocation begins and ends a session within a
single process, so any pre-session audit buffer for this root is always
empty here — it exists for serve's benefit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		buffer := audit.NewPreSessionBuffer()
		if err := buffer.FlushInto(p.Paths.Root(), p.Audit); err != nil {
			return fmt.Errorf("flush pre-session audit buffer: %w", err)
		}

		fmt.Fprintf(os.Stdout, "session_id: %s\n", p.Session.ID())
		fmt.Fprintf(os.Stdout, "role: %s\n", p.Session.Role())
		fmt.Fprintf(os.Stdout, "workspace_root: %s\n", p.Session.WorkspaceRoot())
		fmt.Fprintf(os.Stdout, "bootstrap_enabled: %t\n", p.Registry.State().BootstrapEnabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionBeginCmd)
}
