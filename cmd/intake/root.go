package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/intakehq/intake"
	"github.com/intakehq/intake/internal/adapters/sqlite"
	"github.com/intakehq/intake/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "intake is an import wizard engine",
	Long: `intake walks import sessions through a deterministic workflow:
scan a source directory, select what to import, resolve target conflicts and
compile an idempotent batch of processing jobs.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("engine-dir", ".intake", "Directory for session state and artifacts")
	rootCmd.PersistentFlags().String("source-dir", ".", "Directory scanned for importable items")
	rootCmd.PersistentFlags().String("library-dir", "library", "Directory import targets are planned into")
	rootCmd.PersistentFlags().String("workflow", "", "Workflow definition file (YAML)")
	rootCmd.PersistentFlags().String("tuning", "", "Tuning configuration file (TOML)")
	rootCmd.PersistentFlags().String("jobs-db", "", "SQLite database for the job queue (default: in-memory)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// newEngine builds the engine from the persistent flags.
func newEngine(cmd *cobra.Command) (*intake.Engine, error) {
	engineDir, _ := cmd.Flags().GetString("engine-dir")
	sourceDir, _ := cmd.Flags().GetString("source-dir")
	libraryDir, _ := cmd.Flags().GetString("library-dir")
	workflowPath, _ := cmd.Flags().GetString("workflow")
	tuningPath, _ := cmd.Flags().GetString("tuning")
	jobsDB, _ := cmd.Flags().GetString("jobs-db")
	debug, _ := cmd.Flags().GetBool("debug")

	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}

	opts := []intake.Option{
		intake.WithRoots(map[string]string{
			"engine":  engineDir,
			"source":  sourceDir,
			"library": libraryDir,
		}),
		intake.WithLogger(logging.New(level)),
	}
	if workflowPath != "" {
		opts = append(opts, intake.WithDefinitionFile(workflowPath))
	}
	if tuningPath != "" {
		opts = append(opts, intake.WithTuningFile(tuningPath))
	}
	if jobsDB != "" {
		queue, err := sqlite.Open(jobsDB)
		if err != nil {
			return nil, err
		}
		opts = append(opts, intake.WithQueue(queue))
	}
	return intake.New(opts...)
}
