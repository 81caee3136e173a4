// Package commands holds the nightshift command tree.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/nightshift/am"
	"github.com/teranos/nightshift/db"
	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/equipment/sim"
	"github.com/teranos/nightshift/equipment/wsrpc"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/schedfile"
	"github.com/teranos/nightshift/sky"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "run 'nightshift am show' to inspect the merged configuration")
	}
	return cfg, nil
}

func openDatabase(cfg *am.Config) (*sql.DB, error) {
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}
	return conn, nil
}

// connectEquipment returns the equipment services and a function releasing
// them. The simulated observatory is used when simulate is set on the
// command line or in the configuration.
func connectEquipment(ctx context.Context, cfg *am.Config, simulate bool) (equipment.Services, func(), error) {
	if simulate || cfg.Equipment.Simulate {
		logger.Logger.Infow("Using simulated equipment")
		return sim.New().Services(), func() {}, nil
	}
	c, err := wsrpc.Dial(ctx, wsrpc.ConfigFromAM(cfg.Equipment), logger.Logger)
	if err != nil {
		return equipment.Services{}, nil, errors.WithHint(err, "check equipment.endpoint or pass --simulate")
	}
	return c.Services(), func() { _ = c.Close() }, nil
}

// newScheduler builds a scheduler for cfg with the given clock.
func newScheduler(ctx context.Context, cfg *am.Config, svc equipment.Services, clock sky.Clock) *scheduler.Scheduler {
	sc := sky.Context{Clock: clock, Site: scheduler.SiteFromConfig(cfg)}
	return scheduler.New(ctx, svc, sc, scheduler.OptionsFromConfig(cfg), logger.Logger)
}

func loadSchedule(path string, cfg *am.Config) (*schedfile.Schedule, error) {
	return schedfile.Load(path, cfg.Location())
}

func formatStartup(j *job.Job) string {
	switch j.StartupCondition {
	case job.StartAt:
		return "at " + j.StartupTime.Format("2006-01-02 15:04")
	case job.StartCulmination:
		return fmt.Sprintf("culmination %+dm", j.CulminationOffset)
	}
	return "asap"
}

func formatEstimate(seconds int64) string {
	switch seconds {
	case job.EstimateUnknown:
		return "?"
	case job.EstimateIndeterminate:
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatScore(score int16) string {
	if score == job.BadScore {
		return "BAD"
	}
	return fmt.Sprintf("%d", score)
}

// printJobs renders jobs as a table.
func printJobs(jobs []*job.Job) error {
	data := pterm.TableData{{"#", "Name", "Priority", "State", "Stage", "Score", "Startup", "Estimate"}}
	for i, j := range jobs {
		data = append(data, []string{
			fmt.Sprintf("%d", i+1),
			j.Name,
			fmt.Sprintf("%d", j.Priority),
			j.State().String(),
			j.Stage().String(),
			formatScore(j.Score()),
			formatStartup(j),
			formatEstimate(j.EstimatedTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
