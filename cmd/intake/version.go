package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intakehq/intake"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of intake",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("intake version %s\n", intake.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
