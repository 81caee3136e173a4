// Package am holds nightshift's configuration: where the observatory is,
// how the scheduler behaves, and how to reach the equipment.
package am

// DefaultDirPermissions is used for ~/.nightshift and the status file directory.
const DefaultDirPermissions = 0750

// Config represents the complete nightshift configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Site      SiteConfig      `mapstructure:"site" toml:"site"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
	Equipment EquipmentConfig `mapstructure:"equipment" toml:"equipment"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the run history database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// SiteConfig is the geographic location of the observatory
type SiteConfig struct {
	Name      string  `mapstructure:"name" toml:"name"`
	Latitude  float64 `mapstructure:"latitude" toml:"latitude"`   // degrees, north positive
	Longitude float64 `mapstructure:"longitude" toml:"longitude"` // degrees, east positive
	Elevation float64 `mapstructure:"elevation" toml:"elevation"` // metres
	Timezone  string  `mapstructure:"timezone" toml:"timezone"`   // IANA name, empty = local
}

// SchedulerConfig holds the scheduling options that apply to every job
type SchedulerConfig struct {
	TickIntervalMS int `mapstructure:"tick_interval_ms" toml:"tick_interval_ms"`

	// Minimum buffer between job start times, also the "already passed" slack
	LeadTimeMinutes int `mapstructure:"lead_time_minutes" toml:"lead_time_minutes"`
	// Safety margin before astronomical dawn
	PreDawnMinutes int `mapstructure:"pre_dawn_minutes" toml:"pre_dawn_minutes"`

	SortJobs            bool `mapstructure:"sort_jobs" toml:"sort_jobs"`
	RememberJobProgress bool `mapstructure:"remember_job_progress" toml:"remember_job_progress"`

	PreemptiveShutdown      bool    `mapstructure:"preemptive_shutdown" toml:"preemptive_shutdown"`
	PreemptiveShutdownHours float64 `mapstructure:"preemptive_shutdown_hours" toml:"preemptive_shutdown_hours"`

	StopManagerAfterShutdown        bool `mapstructure:"stop_manager_after_shutdown" toml:"stop_manager_after_shutdown"`
	ShutdownScriptTerminatesDevices bool `mapstructure:"shutdown_script_terminates_devices" toml:"shutdown_script_terminates_devices"`

	ResetMountModelBeforeJob   bool `mapstructure:"reset_mount_model_before_job" toml:"reset_mount_model_before_job"`
	ResetMountModelOnAlignFail bool `mapstructure:"reset_mount_model_on_align_fail" toml:"reset_mount_model_on_align_fail"`

	FocusUseFullField bool `mapstructure:"focus_use_full_field" toml:"focus_use_full_field"`
	DitherEnabled     bool `mapstructure:"dither_enabled" toml:"dither_enabled"`
	DitherFrames      int  `mapstructure:"dither_frames" toml:"dither_frames"`

	// Equipment profile sent to the manager before it is started
	Profile string `mapstructure:"profile" toml:"profile"`
	// YAML status snapshot, empty disables it
	StatusFile string `mapstructure:"status_file" toml:"status_file"`
}

// EquipmentConfig configures the remote equipment bridge
type EquipmentConfig struct {
	Endpoint          string  `mapstructure:"endpoint" toml:"endpoint"`
	CallTimeoutMS     int     `mapstructure:"call_timeout_ms" toml:"call_timeout_ms"`
	MaxCallsPerSecond float64 `mapstructure:"max_calls_per_second" toml:"max_calls_per_second"`
	Simulate          bool    `mapstructure:"simulate" toml:"simulate"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Address string `mapstructure:"address" toml:"address"` // empty disables the endpoint
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}
