package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/scheduler"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/sym"
)

// ProcedureCmd runs the startup or shutdown procedure of a schedule by hand
var ProcedureCmd = &cobra.Command{
	Use:   "procedure",
	Short: sym.Pulse + " Run the startup or shutdown procedure",
	Long: sym.Pulse + ` procedure — Run the startup or shutdown procedure of a schedule

The steps come from the schedule file: scripts, dome, mount and dust cap
(un)parking and CCD warming. No job is run.

Examples:
  nightshift procedure startup tonight.esl
  nightshift procedure shutdown tonight.esl --simulate`,
}

var procedureSimulate bool

func init() {
	for _, kind := range []scheduler.ProcedureKind{scheduler.ProcedureStartup, scheduler.ProcedureShutdown} {
		kind := kind
		ProcedureCmd.AddCommand(&cobra.Command{
			Use:   kind.String() + " <schedule.esl>",
			Short: "Run the " + kind.String() + " procedure",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runProcedure(cmd, args[0], kind)
			},
		})
	}
	ProcedureCmd.PersistentFlags().BoolVar(&procedureSimulate, "simulate", false, "Drive the simulated observatory instead of the equipment bridge")
}

func runProcedure(cmd *cobra.Command, path string, kind scheduler.ProcedureKind) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sch, err := loadSchedule(path, cfg)
	if err != nil {
		return err
	}
	svc, release, err := connectEquipment(ctx, cfg, procedureSimulate)
	if err != nil {
		return err
	}
	defer release()

	// the scheduler outlives ctx so that an interrupt can still abort the procedure
	s := newScheduler(context.Background(), cfg, svc, sky.SystemClock{})
	defer s.Close()
	if err := s.Load(sch); err != nil {
		return err
	}

	pterm.Info.Printfln("Running %s procedure of %s", kind, sch)
	if err := s.RunProcedure(ctx, kind); err != nil {
		pterm.Error.Printfln("%s procedure failed", kind)
		return err
	}
	pterm.Success.Printfln("%s procedure complete", kind)
	return nil
}
