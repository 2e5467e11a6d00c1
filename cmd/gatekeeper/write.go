package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/format"
	"github.com/boshu2/gatekeeper/internal/gate"
	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

var (
	writePath         string
	writePlan         string
	writeContent      string
	writeContentFile  string
	writePatchFile    string
	writePreviousHash string
	writeRole         string
	writeOwner        string
	writePurpose      string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Submit a write request through the admission pipeline",
	Long: `Runs a write request through G1-G10: session and schema checks, path
authority, the concurrency precondition, content materialization, plan
authority, role-header synthesis, content policy, the atomic filesystem
commit, the preflight command, and the audit commit.

Exactly one of --content/--content-file or --patch-file must be given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		req, err := buildWriteRequest()
		if err != nil {
			return err
		}

		outcome, writeErr := p.Gate.Write(cmd.Context(), req)
		env := format.Envelope{Command: "write"}
		if writeErr != nil {
			ge, ok := asGKError(writeErr)
			if !ok {
				return writeErr
			}
			env.Err = ge
			return emitEnvelope(env)
		}
		env.WriteOutcome = &outcome
		return emitEnvelope(env)
	},
}

func buildWriteRequest() (gate.WriteRequest, error) {
	req := gate.WriteRequest{
		Path:         writePath,
		PreviousHash: writePreviousHash,
		PlanRef:      writePlan,
	}

	switch {
	case writePatchFile != "":
		patch, err := os.ReadFile(writePatchFile)
		if err != nil {
			return gate.WriteRequest{}, err
		}
		req.Patch = patch
	case writeContentFile != "":
		content, err := os.ReadFile(writeContentFile)
		if err != nil {
			return gate.WriteRequest{}, err
		}
		req.Content = content
	default:
		req.Content = []byte(writeContent)
	}

	if writeRole != "" || writeOwner != "" || writePurpose != "" {
		req.RoleHeader = &gate.RoleHeaderFields{
			Role:    gate.ArtifactRole(writeRole),
			Owner:   writeOwner,
			Purpose: writePurpose,
		}
	}

	return req, nil
}

// asGKError extracts the *gkerrors.Error from err, the shape every
// Envelope's Err field expects.
func asGKError(err error) (*gkerrors.Error, bool) {
	var ge *gkerrors.Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVar(&writePath, "path", "", "Target path, relative to the workspace root (required)")
	writeCmd.Flags().StringVar(&writePlan, "plan", "", "Plan hash asserting authority for this write (required)")
	writeCmd.Flags().StringVar(&writeContent, "content", "", "Verbatim replacement content")
	writeCmd.Flags().StringVar(&writeContentFile, "content-file", "", "File containing verbatim replacement content")
	writeCmd.Flags().StringVar(&writePatchFile, "patch-file", "", "File containing a unified-diff patch against current content")
	writeCmd.Flags().StringVar(&writePreviousHash, "previous-hash", "", "Optional concurrency precondition (hex sha256 of current content)")
	writeCmd.Flags().StringVar(&writeRole, "role-header-role", "", "Optional artifact role to synthesize (executable, infrastructure, documentation)")
	writeCmd.Flags().StringVar(&writeOwner, "owner", "", "Owner field for a synthesized role header")
	writeCmd.Flags().StringVar(&writePurpose, "purpose", "", "Purpose field for a synthesized role header")
	_ = writeCmd.MarkFlagRequired("path")
	_ = writeCmd.MarkFlagRequired("plan")
}
