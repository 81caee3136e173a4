package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/am"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/history"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/metrics"
	"github.com/teranos/nightshift/scheduler"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/schedfile"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/status"
	"github.com/teranos/nightshift/sym"
)

// RunCmd runs a schedule until it completes or is interrupted
var RunCmd = &cobra.Command{
	Use:   "run <schedule.esl>",
	Short: sym.Pulse + " Run a schedule",
	Long: sym.Pulse + ` run — Run a schedule until it completes or is interrupted

The scheduler starts the equipment, runs each job when its constraints allow
and shuts the observatory down when the queue is exhausted or dawn comes.
Interrupt (Ctrl-C) stops the run: the running job is aborted and the
equipment is left where it is.

While the scheduler is idle, edits to the schedule file are picked up
automatically. Configuration changes apply from the next evaluation.

Examples:
  nightshift run tonight.esl
  nightshift run tonight.esl --simulate --status-file /tmp/nightshift.yaml
  nightshift run tonight.esl --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSimulate    bool
	runMetricsAddr string
	runStatusFile  string
)

func init() {
	RunCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Drive the simulated observatory instead of the equipment bridge")
	RunCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.address)")
	RunCmd.Flags().StringVar(&runStatusFile, "status-file", "", "Keep a YAML status snapshot at this path (overrides scheduler.status_file)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sch, err := loadSchedule(args[0], cfg)
	if err != nil {
		return err
	}

	svc, release, err := connectEquipment(ctx, cfg, runSimulate)
	if err != nil {
		return err
	}
	defer release()

	s := newScheduler(context.Background(), cfg, svc, sky.SystemClock{})
	defer s.Close()

	// history
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	recorder := history.NewRecorder(history.NewStore(conn), log)
	if err := addObserver(s, recorder); err != nil {
		return err
	}

	// metrics
	addr := cfg.Metrics.Address
	if runMetricsAddr != "" {
		addr = runMetricsAddr
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		sink := metrics.NewSink(reg, log)
		if err := addObserver(s, sink); err != nil {
			return err
		}
		go func() {
			if err := metrics.Serve(ctx, addr, reg, log); err != nil {
				log.Errorw("Metrics endpoint stopped", logger.FieldError, err)
			}
		}()
	}

	// status snapshot
	statusFile := cfg.Scheduler.StatusFile
	if runStatusFile != "" {
		statusFile = runStatusFile
	}
	if statusFile != "" {
		w := status.NewWriter(statusFile, log)
		if err := addObserver(s, w); err != nil {
			return err
		}
	}

	if err := s.Load(sch); err != nil {
		return err
	}

	watcher, err := schedfile.NewWatcher(sch.Path, cfg.Location(), s.ScheduleChanged, log)
	if err != nil {
		log.Warnw("Schedule file will not be reloaded", logger.FieldError, err)
	} else {
		watcher.Start()
		defer watcher.Stop()
	}
	if path := configPath(); path != "" {
		if cw, err := am.NewConfigWatcher(path, log); err != nil {
			log.Warnw("Configuration will not be reloaded", logger.FieldError, err)
		} else {
			cw.OnReload(func(c *am.Config) error {
				if err := c.Validate(); err != nil {
					return err
				}
				return s.SetOptions(scheduler.OptionsFromConfig(c))
			})
			cw.Start()
			defer cw.Stop()
		}
	}

	pterm.Info.Printfln("Running %s", sch)
	if err := s.Start(); err != nil {
		return err
	}
	logger.PulseInfow("Run started", logger.FieldRunID, s.RunID(), logger.FieldFile, sch.Path)

	runErr := s.Wait(ctx)
	if errors.Is(runErr, context.Canceled) {
		pterm.Warning.Println("Interrupted, stopping the run")
		if err := s.Stop(); err != nil {
			return err
		}
		runErr = s.Wait(context.Background())
	}

	if err := printJobs(s.Jobs()); err != nil {
		return err
	}
	if runErr != nil {
		pterm.Error.Printfln("Run %s failed", s.RunID())
		return runErr
	}
	pterm.Success.Printfln("Run %s finished", s.RunID())
	return nil
}

type runObserver interface {
	job.Observer
	scheduler.RunListener
}

// addObserver registers o for job changes and for run starts and stops.
func addObserver(s *scheduler.Scheduler, o runObserver) error {
	if err := s.AddObserver(o); err != nil {
		return err
	}
	return s.AddRunListener(o)
}

// configPath is the highest precedence config file that exists, if any.
func configPath() string {
	paths := am.ConfigPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i]); err == nil {
			return paths[i]
		}
	}
	return ""
}
