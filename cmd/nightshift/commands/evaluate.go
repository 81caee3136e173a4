package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/scheduler/evaluate"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/sym"
)

// EvaluateCmd scores a schedule without starting anything
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate <schedule.esl>",
	Short: sym.Eval + " Score a schedule without touching the equipment",
	Long: sym.Eval + ` evaluate — Score a schedule without touching the equipment

Runs one evaluation pass over the schedule and prints the score, state and
computed start time of every job, then the decision the scheduler would take.

Examples:
  nightshift evaluate tonight.esl
  nightshift evaluate tonight.esl --at 2025-01-15T21:00:00+01:00`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var (
	evaluateAt       string
	evaluateSimulate bool
)

func init() {
	EvaluateCmd.Flags().StringVar(&evaluateAt, "at", "", "Evaluate as if it were this time (RFC3339)")
	EvaluateCmd.Flags().BoolVar(&evaluateSimulate, "simulate", false, "Use the simulated observatory instead of the equipment bridge")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var clock sky.Clock = sky.SystemClock{}
	if evaluateAt != "" {
		at, err := time.Parse(time.RFC3339, evaluateAt)
		if err != nil {
			return errors.WithHint(errors.Wrapf(errors.ErrInvalidRequest, "invalid --at %q", evaluateAt),
				"use RFC3339, for example 2025-01-15T21:00:00+01:00")
		}
		clock = sky.NewFixedClock(at)
	}

	sch, err := loadSchedule(args[0], cfg)
	if err != nil {
		return err
	}
	svc, release, err := connectEquipment(cmd.Context(), cfg, evaluateSimulate)
	if err != nil {
		return err
	}
	defer release()

	s := newScheduler(cmd.Context(), cfg, svc, clock)
	defer s.Close()
	if err := s.Load(sch); err != nil {
		return err
	}

	d, err := s.EvaluateOnly()
	if err != nil {
		return err
	}

	if err := printJobs(s.Jobs()); err != nil {
		return err
	}
	printDecision(d)
	return nil
}

func printDecision(d evaluate.Decision) {
	pterm.Info.Printfln("Upcoming %d, completed %d, aborted %d, invalid %d",
		d.Counts.Upcoming, d.Counts.Completed, d.Counts.Aborted, d.Counts.Invalid)
	switch d.Kind {
	case evaluate.Run:
		pterm.Success.Printfln("Next job: %s", d.Job.Name)
	case evaluate.Sleep:
		pterm.Info.Printfln("Sleep for %s", d.Wake.Round(time.Second))
	case evaluate.Evaluated:
		if d.Counts.Upcoming == 0 {
			pterm.Warning.Println("No job can run")
		}
	default:
		pterm.Info.Printfln("Decision: %s", d.Kind)
	}
}
