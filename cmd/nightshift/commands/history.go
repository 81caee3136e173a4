package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/history"
	"github.com/teranos/nightshift/sym"
)

// HistoryCmd shows recorded runs and job events
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: sym.DB + " Show past scheduler runs",
	Long: sym.DB + ` history — Show past scheduler runs and what their jobs did

Examples:
  nightshift history runs
  nightshift history runs --limit 5
  nightshift history events 3f2c9a1e-...`,
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs, newest first",
	RunE:  runHistoryRuns,
}

var historyEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "List the job events of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryEvents,
}

var historyLimit int

func init() {
	historyRunsCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show (0 for all)")

	HistoryCmd.AddCommand(historyRunsCmd)
	HistoryCmd.AddCommand(historyEventsCmd)
}

func openHistory() (*history.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(conn), func() { _ = conn.Close() }, nil
}

func runHistoryRuns(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistory()
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}

	data := pterm.TableData{{"ID", "Schedule", "Started", "Ended", "Outcome"}}
	for _, r := range runs {
		ended, outcome := "-", r.Outcome
		if !r.EndedAt.IsZero() {
			ended = r.EndedAt.Local().Format("2006-01-02 15:04:05")
		} else {
			outcome = "running"
		}
		data = append(data, []string{
			r.ID,
			r.SchedulePath,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			ended,
			outcome,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runHistoryEvents(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistory()
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	events, err := store.ListEvents(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printfln("Run %s (%s)", run.ID, run.SchedulePath)
	data := pterm.TableData{{"Time", "Job", "Kind", "State", "Stage", "Score", "Change"}}
	for _, e := range events {
		data = append(data, []string{
			e.CreatedAt.Local().Format("15:04:05"),
			e.JobName,
			e.Kind,
			e.State,
			e.Stage,
			fmt.Sprintf("%d", e.Score),
			e.Message,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
