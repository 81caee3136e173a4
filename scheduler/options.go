package scheduler

import (
	"time"

	"github.com/teranos/nightshift/am"
	"github.com/teranos/nightshift/pulse/tick"
	"github.com/teranos/nightshift/scheduler/estimate"
	"github.com/teranos/nightshift/scheduler/evaluate"
	"github.com/teranos/nightshift/scheduler/execute"
	"github.com/teranos/nightshift/scheduler/orchestrate"
	"github.com/teranos/nightshift/sky"
)

// Options gathers the settings of every scheduler component.
type Options struct {
	Tick        tick.Config
	Evaluate    evaluate.Options
	Orchestrate orchestrate.Options
	Execute     execute.Options
	Estimate    estimate.Options
}

// DefaultOptions returns the stock settings of every component.
func DefaultOptions() Options {
	return Options{
		Tick:        tick.DefaultConfig(),
		Evaluate:    evaluate.DefaultOptions(),
		Orchestrate: orchestrate.DefaultOptions(),
		Execute:     execute.Options{RememberJobProgress: true},
		Estimate:    estimate.Options{RememberJobProgress: true, DitherEnabled: true, DitherFrames: 1},
	}
}

// OptionsFromConfig maps the scheduler section of the configuration onto
// the component options. Timeouts not exposed in the configuration keep
// their defaults.
func OptionsFromConfig(cfg *am.Config) Options {
	sc := cfg.Scheduler
	opts := DefaultOptions()

	opts.Tick.Interval = cfg.TickInterval()

	opts.Evaluate.LeadTime = time.Duration(sc.LeadTimeMinutes) * time.Minute
	opts.Evaluate.PreDawnMargin = time.Duration(sc.PreDawnMinutes) * time.Minute
	opts.Evaluate.SortJobs = sc.SortJobs
	opts.Evaluate.PreemptiveShutdown = sc.PreemptiveShutdown
	opts.Evaluate.PreemptiveShutdownAfter = time.Duration(sc.PreemptiveShutdownHours * float64(time.Hour))

	opts.Orchestrate.Profile = sc.Profile
	opts.Orchestrate.StopManagerAfterShutdown = sc.StopManagerAfterShutdown
	opts.Orchestrate.ShutdownScriptTerminatesDevices = sc.ShutdownScriptTerminatesDevices

	opts.Execute = execute.Options{
		RememberJobProgress:        sc.RememberJobProgress,
		ResetMountModelBeforeJob:   sc.ResetMountModelBeforeJob,
		ResetMountModelOnAlignFail: sc.ResetMountModelOnAlignFail,
		FocusUseFullField:          sc.FocusUseFullField,
	}
	opts.Estimate = estimate.Options{
		RememberJobProgress: sc.RememberJobProgress,
		DitherEnabled:       sc.DitherEnabled,
		DitherFrames:        sc.DitherFrames,
	}
	return opts
}

// SiteFromConfig returns the observatory location of the configuration.
func SiteFromConfig(cfg *am.Config) sky.Site {
	return sky.Site{
		Name:      cfg.Site.Name,
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Elevation: cfg.Site.Elevation,
		Location:  cfg.Location(),
	}
}
