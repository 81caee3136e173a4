package am

import "github.com/spf13/viper"

// SetDefaults configures sensible default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "nightshift.db")

	// Site defaults to Greenwich so a fresh install computes real twilight times
	v.SetDefault("site.name", "Greenwich")
	v.SetDefault("site.latitude", 51.4769)
	v.SetDefault("site.longitude", -0.0005)
	v.SetDefault("site.elevation", 46.0)
	v.SetDefault("site.timezone", "")

	v.SetDefault("scheduler.tick_interval_ms", 1000)
	v.SetDefault("scheduler.lead_time_minutes", 5)
	v.SetDefault("scheduler.pre_dawn_minutes", 30)
	v.SetDefault("scheduler.sort_jobs", true)
	v.SetDefault("scheduler.remember_job_progress", true)
	v.SetDefault("scheduler.preemptive_shutdown", false)
	v.SetDefault("scheduler.preemptive_shutdown_hours", 2.0)
	v.SetDefault("scheduler.stop_manager_after_shutdown", true)
	v.SetDefault("scheduler.shutdown_script_terminates_devices", false)
	v.SetDefault("scheduler.reset_mount_model_before_job", false)
	v.SetDefault("scheduler.reset_mount_model_on_align_fail", false)
	v.SetDefault("scheduler.focus_use_full_field", false)
	v.SetDefault("scheduler.dither_enabled", true)
	v.SetDefault("scheduler.dither_frames", 1)
	v.SetDefault("scheduler.profile", "Default")
	v.SetDefault("scheduler.status_file", "")

	v.SetDefault("equipment.endpoint", "ws://localhost:7624/rpc")
	v.SetDefault("equipment.call_timeout_ms", 2000)
	v.SetDefault("equipment.max_calls_per_second", 20.0)
	v.SetDefault("equipment.simulate", false)

	v.SetDefault("metrics.address", "")
	v.SetDefault("log.json", false)
}
