package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var readPath string

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a file through the locked path authority",
	Long: `Resolves --path against the workspace root via the same path authority
write_file uses, then prints the file's raw content to stdout. This never
touches the admission pipeline or the audit log: reads are not governed
mutations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := wirePipeline()
		if err != nil {
			return err
		}

		resolved, err := p.Paths.ResolveRead(readPath)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			return fmt.Errorf("read %s: %w", readPath, err)
		}

		_, err = os.Stdout.Write(content)
		return err
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVar(&readPath, "path", "", "Path to read, relative to the workspace root (required)")
	_ = readCmd.MarkFlagRequired("path")
}
