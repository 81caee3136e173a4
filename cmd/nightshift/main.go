package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/am"
	"github.com/teranos/nightshift/cmd/nightshift/commands"
	"github.com/teranos/nightshift/logger"
)

var rootCmd = &cobra.Command{
	Use:   "nightshift",
	Short: "nightshift - unattended observatory scheduler",
	Long: `nightshift - unattended observatory scheduler.

nightshift reads a schedule of observation jobs, decides which job should run
and when, and drives the observatory equipment through startup, acquisition
and shutdown without an operator.

Available commands:
  am        - Manage nightshift configuration ("I am")
  run       - Run a schedule until it completes or is interrupted
  evaluate  - Score a schedule without touching the equipment
  schedule  - Inspect and validate schedule files
  procedure - Run the startup or shutdown procedure on its own
  history   - Show recorded runs and job events
  db        - Manage the history database

Examples:
  nightshift run tonight.esl --simulate
  nightshift evaluate tonight.esl --at 2025-01-15T21:00:00+01:00
  nightshift history runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput := false
		if cfg, err := am.Load(); err == nil {
			jsonOutput = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.EvaluateCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.ProcedureCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
