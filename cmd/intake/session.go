package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/intakehq/intake/internal/cli"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect persisted sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		return cli.ListSessions(context.Background(), engine, os.Stdout)
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's current step and decision log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		return cli.ShowSession(context.Background(), engine, args[0], os.Stdout)
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd)
	rootCmd.AddCommand(sessionCmd)
}
