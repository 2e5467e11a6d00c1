package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/format"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Inspect and reconcile the plan registry",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every plan in the registry's index",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		state := p.Registry.State()
		summaries := make([]format.PlanSummary, 0, len(state.PlanIndex))
		for hash, entry := range state.PlanIndex {
			summaries = append(summaries, format.PlanSummary{Hash: hash, Entry: entry})
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Hash < summaries[j].Hash })

		return emitEnvelope(format.Envelope{Command: "plans list", Plans: summaries})
	},
}

var plansReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-scan the plans directory against the governance index",
	Long: `Scans every ".md" file in the plans directory, verifying filename/content
hash agreement and auto-registering files the index doesn't yet know about
(when auto_register is enabled). Directories with many plans report
progress to stderr.

This is an I/O-bound maintenance operation, not an admission-pipeline
decision — its report has no Envelope shape of its own and is printed
directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		report, err := p.Registry.Reconcile()
		if err != nil {
			return err
		}

		fmt.Printf("auto_added: %d\n", len(report.AutoAdded))
		for _, name := range report.AutoAdded {
			fmt.Printf("  + %s\n", name)
		}
		fmt.Printf("mismatched: %d\n", len(report.Mismatched))
		for _, name := range report.Mismatched {
			fmt.Printf("  ! %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansListCmd)
	plansCmd.AddCommand(plansReconcileCmd)
}
