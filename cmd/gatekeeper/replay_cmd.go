package main

import (
	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/format"
	"github.com/boshu2/gatekeeper/internal/replay"
)

var (
	replayPlan   string
	replayPhase  string
	replayTool   string
	replaySeqLo  uint64
	replaySeqHi  uint64
	replayRecord bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-derive a verdict for one plan from the audit log",
	Long: `Projects the audit log to records citing --plan (narrowed by
--phase/--tool/--seq-lo/--seq-hi) and evaluates determinism, plan
authority, content policy, and evidence-gap findings (spec §4.8). Never
invokes a tool handler; with --record, appends exactly one audit record
documenting that the replay ran.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		filters := replay.Filters{
			Phase: replayPhase,
			Tool:  replayTool,
			SeqLo: replaySeqLo,
			SeqHi: replaySeqHi,
		}

		verdict, err := replay.Replay(p.Registry, p.Audit, replayPlan, filters, replayRecord, p.Metrics)
		if err != nil {
			return err
		}

		return emitEnvelope(format.Envelope{Command: "replay", Verdict: &verdict})
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayPlan, "plan", "", "Plan hash to replay (required)")
	replayCmd.Flags().StringVar(&replayPhase, "phase", "", "Restrict to records declaring this phase ID")
	replayCmd.Flags().StringVar(&replayTool, "tool", "", "Restrict to records for this tool name")
	replayCmd.Flags().Uint64Var(&replaySeqLo, "seq-lo", 0, "Lowest seq to include (inclusive)")
	replayCmd.Flags().Uint64Var(&replaySeqHi, "seq-hi", 0, "Highest seq to include (inclusive); 0 means no upper bound")
	replayCmd.Flags().BoolVar(&replayRecord, "record", false, "Append one audit record documenting that this replay ran")
	_ = replayCmd.MarkFlagRequired("plan")
}
