package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/gatekeeper/internal/bootstrap"
)

var (
	bootstrapRequestFile string
	bootstrapPlanFile    string
)

// bootstrapRequestDoc is the on-disk shape of --request-file: the signed
// payload fields plus a hex-encoded MAC, everything bootstrap.Request
// needs except the plan content itself (which comes from --plan-file).
type bootstrapRequestDoc struct {
	RepoID    string    `json:"repo_id"`
	Timestamp time.Time `json:"timestamp"`
	Nonce     string    `json:"nonce"`
	Action    string    `json:"action"`
	MAC       string    `json:"mac"`
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Register the first plan into an empty registry",
	Long: `Verifies a signed bootstrap request (spec §4.4) and, on success,
registers the proposed plan while atomically disabling further bootstrap
attempts. The signing secret is loaded from bootstrap.secret_path (a file)
or, if unset, the environment variable named by bootstrap.secret_env.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(bootstrapRequestFile)
		if err != nil {
			return fmt.Errorf("read request file: %w", err)
		}
		var doc bootstrapRequestDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse request file: %w", err)
		}
		mac, err := hex.DecodeString(doc.MAC)
		if err != nil {
			return fmt.Errorf("decode mac: %w", err)
		}

		planContent, err := os.ReadFile(bootstrapPlanFile)
		if err != nil {
			return fmt.Errorf("read plan file: %w", err)
		}

		secret, err := loadBootstrapSecret(p.Config.Bootstrap.SecretPath, p.Config.Bootstrap.SecretEnv)
		if err != nil {
			return err
		}
		key, err := bootstrap.DeriveKey(secret)
		if err != nil {
			return err
		}

		req := bootstrap.Request{
			Payload: bootstrap.Payload{
				RepoID:    doc.RepoID,
				Timestamp: doc.Timestamp,
				Nonce:     doc.Nonce,
				Action:    doc.Action,
			},
			MAC:         mac,
			PlanContent: planContent,
		}

		registered, err := bootstrap.Attempt(p.Registry, key, req, time.Now())
		if err != nil {
			return err
		}

		return printBootstrapResult(registered.Hash, string(registered.Header.Status))
	},
}

// loadBootstrapSecret prefers a secret file over an environment variable,
// matching internal/config.BootstrapConfig's documented precedence.
func loadBootstrapSecret(secretPath, secretEnv string) ([]byte, error) {
	if secretPath != "" {
		b, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("read bootstrap secret file: %w", err)
		}
		return []byte(strings.TrimRight(string(b), "\n")), nil
	}
	if secretEnv != "" {
		if v, ok := os.LookupEnv(secretEnv); ok {
			return []byte(v), nil
		}
	}
	return nil, fmt.Errorf("no bootstrap secret configured: set bootstrap.secret_path or %s", secretEnv)
}

func printBootstrapResult(hash, status string) error {
	if GetOutput() == "json" || GetOutput() == "jsonl" {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(map[string]string{"plan_hash": hash, "status": status})
	}
	fmt.Printf("bootstrap complete\n")
	fmt.Printf("plan_hash: %s\n", hash)
	fmt.Printf("status: %s\n", status)
	return nil
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bootstrapCmd.Flags().StringVar(&bootstrapRequestFile, "request-file", "", "JSON file with the signed bootstrap payload and MAC (required)")
	bootstrapCmd.Flags().StringVar(&bootstrapPlanFile, "plan-file", "", "File containing the proposed plan's markdown content (required)")
	_ = bootstrapCmd.MarkFlagRequired("request-file")
	_ = bootstrapCmd.MarkFlagRequired("plan-file")
}
