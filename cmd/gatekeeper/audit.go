package main

import (
	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/format"
	"github.com/boshu2/gatekeeper/internal/replay"
)

var (
	auditFrom uint64
	auditTo   uint64
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the hash-chained audit log",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print audit records in a seq range",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		records, err := p.Audit.ReadRange(auditFrom, auditTo)
		if err != nil {
			return err
		}

		return emitEnvelope(format.Envelope{Command: "audit show", AuditRecords: records})
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify workspace and audit chain integrity",
	Long: `Checks that the workspace root is validly locked, the audit file parses,
sequences are monotone and gap-free, and every record's hash recomputes
correctly. This never mutates anything (spec §4.8).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		verdict, err := replay.VerifyWorkspaceIntegrity(p.Paths, p.Audit)
		if err != nil {
			return err
		}

		return emitEnvelope(format.Envelope{Command: "audit verify", Verdict: &verdict})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditShowCmd.Flags().Uint64Var(&auditFrom, "from", 0, "Lowest seq to include (inclusive)")
	auditShowCmd.Flags().Uint64Var(&auditTo, "to", 0, "Highest seq to include (inclusive); 0 means no upper bound")
}
