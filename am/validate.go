package am

import (
	"time"

	"github.com/teranos/nightshift/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		return errors.Newf("site.latitude must be within [-90, 90], got %f", c.Site.Latitude)
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		return errors.Newf("site.longitude must be within [-180, 180], got %f", c.Site.Longitude)
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			return errors.WithHint(
				errors.Wrapf(err, "site.timezone %q is not a known zone", c.Site.Timezone),
				"use an IANA name such as Europe/Madrid")
		}
	}

	// Tick interval drives every poll, zero would spin
	if c.Scheduler.TickIntervalMS <= 0 {
		return errors.Newf("scheduler.tick_interval_ms must be > 0, got %d", c.Scheduler.TickIntervalMS)
	}
	if c.Scheduler.LeadTimeMinutes < 0 {
		return errors.Newf("scheduler.lead_time_minutes must be >= 0, got %d", c.Scheduler.LeadTimeMinutes)
	}
	if c.Scheduler.PreDawnMinutes < 0 {
		return errors.Newf("scheduler.pre_dawn_minutes must be >= 0, got %d", c.Scheduler.PreDawnMinutes)
	}
	if c.Scheduler.PreemptiveShutdownHours < 0 {
		return errors.Newf("scheduler.preemptive_shutdown_hours must be >= 0, got %f", c.Scheduler.PreemptiveShutdownHours)
	}
	if c.Scheduler.DitherFrames < 1 {
		return errors.Newf("scheduler.dither_frames must be >= 1, got %d", c.Scheduler.DitherFrames)
	}

	if !c.Equipment.Simulate && c.Equipment.Endpoint == "" {
		return errors.WithHint(
			errors.New("equipment.endpoint cannot be empty"),
			"set equipment.simulate = true to run without hardware")
	}
	if c.Equipment.CallTimeoutMS <= 0 {
		return errors.Newf("equipment.call_timeout_ms must be > 0, got %d", c.Equipment.CallTimeoutMS)
	}
	if c.Equipment.MaxCallsPerSecond <= 0 {
		return errors.Newf("equipment.max_calls_per_second must be > 0, got %f", c.Equipment.MaxCallsPerSecond)
	}

	return nil
}

// TickInterval returns the scheduler tick period
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalMS) * time.Millisecond
}

// Location returns the site time zone, falling back to the process zone
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
