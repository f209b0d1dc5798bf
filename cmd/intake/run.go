package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intakehq/intake/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run an interactive import session",
	Long:  `Scans the source directory and walks the import wizard interactively until the session is finalized.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}

		sourcePath := ""
		if len(args) > 0 {
			sourcePath = args[0]
		}

		if err := cli.RunWizard(context.Background(), engine, "source", sourcePath, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("session aborted: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
