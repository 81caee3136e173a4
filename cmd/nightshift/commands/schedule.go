package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/schedfile"
	"github.com/teranos/nightshift/sym"
)

// ScheduleCmd inspects schedule files
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: sym.Job + " Inspect and validate schedule files",
	Long: sym.Job + ` schedule — Inspect and validate schedule files

Examples:
  nightshift schedule show tonight.esl
  nightshift schedule show tonight.esl --yaml
  nightshift schedule validate tonight.esl`,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <schedule.esl>",
	Short: "Show the jobs of a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleShow,
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate <schedule.esl>",
	Short: "Check that a schedule can be loaded",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleValidate,
}

var scheduleYAML bool

func init() {
	scheduleShowCmd.Flags().BoolVar(&scheduleYAML, "yaml", false, "Print the schedule as YAML")

	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(scheduleValidateCmd)
}

type scheduleView struct {
	Path     string        `yaml:"path"`
	Version  string        `yaml:"version"`
	Profile  string        `yaml:"profile,omitempty"`
	Startup  procedureView `yaml:"startup"`
	Shutdown procedureView `yaml:"shutdown"`
	Jobs     []jobView     `yaml:"jobs"`
}

type procedureView struct {
	Steps  []string `yaml:"steps,omitempty"`
	Script string   `yaml:"script,omitempty"`
}

type jobView struct {
	Name              string     `yaml:"name"`
	Priority          int        `yaml:"priority"`
	RA                float64    `yaml:"ra_hours"`
	Dec               float64    `yaml:"dec_degrees"`
	Sequence          string     `yaml:"sequence"`
	FITSFile          string     `yaml:"fits_file,omitempty"`
	Startup           string     `yaml:"startup"`
	StartupTime       *time.Time `yaml:"startup_time,omitempty"`
	Completion        string     `yaml:"completion"`
	Repeats           int        `yaml:"repeats,omitempty"`
	MinAltitude       float64    `yaml:"min_altitude,omitempty"`
	MinMoonSeparation float64    `yaml:"min_moon_separation,omitempty"`
	EnforceWeather    bool       `yaml:"enforce_weather"`
	EnforceTwilight   bool       `yaml:"enforce_twilight"`
	Steps             string     `yaml:"steps"`
}

func newScheduleView(sch *schedfile.Schedule) scheduleView {
	p := sch.Procedure
	v := scheduleView{
		Path:    sch.Path,
		Version: sch.Version,
		Profile: sch.Profile,
		Startup: procedureView{
			Steps:  enabled(step{"unpark_dome", p.UnparkDome}, step{"unpark_mount", p.UnparkMount}, step{"unpark_cap", p.UnparkCap}),
			Script: p.StartupScript,
		},
		Shutdown: procedureView{
			Steps:  enabled(step{"warm_ccd", p.WarmCCD}, step{"park_cap", p.ParkCap}, step{"park_mount", p.ParkMount}, step{"park_dome", p.ParkDome}),
			Script: p.ShutdownScript,
		},
	}
	for _, j := range sch.Jobs {
		jv := jobView{
			Name:            j.Name,
			Priority:        j.Priority,
			RA:              j.RA,
			Dec:             j.Dec,
			Sequence:        j.Sequence,
			FITSFile:        j.FITSFile,
			Startup:         formatStartup(j),
			Completion:      j.CompletionCondition.String(),
			EnforceWeather:  j.EnforceWeather,
			EnforceTwilight: j.EnforceTwilight,
			Steps:           j.Steps.String(),
		}
		if j.StartupCondition == job.StartAt {
			t := j.StartupTime
			jv.StartupTime = &t
		}
		if j.CompletionCondition == job.FinishRepeat {
			jv.Repeats = j.RepeatsRequired
		}
		if j.HasMinAltitude() {
			jv.MinAltitude = j.MinAltitude
		}
		if j.HasMinMoonSeparation() {
			jv.MinMoonSeparation = j.MinMoonSeparation
		}
		v.Jobs = append(v.Jobs, jv)
	}
	return v
}

type step struct {
	name string
	on   bool
}

func enabled(steps ...step) []string {
	var out []string
	for _, s := range steps {
		if s.on {
			out = append(out, s.name)
		}
	}
	return out
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sch, err := loadSchedule(args[0], cfg)
	if err != nil {
		return err
	}

	if scheduleYAML {
		data, err := yaml.Marshal(newScheduleView(sch))
		if err != nil {
			return fmt.Errorf("failed to marshal schedule to YAML: %w", err)
		}
		fmt.Printf("# %s\n%s", sch, data)
		return nil
	}

	pterm.DefaultSection.Println(sch.String())
	if sch.Profile != "" {
		pterm.Info.Printfln("Equipment profile: %s", sch.Profile)
	}
	return printJobs(sch.Jobs)
}

func runScheduleValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sch, err := loadSchedule(args[0], cfg)
	if err != nil {
		return err
	}
	for _, j := range sch.Jobs {
		if err := schedfile.Validate(j); err != nil {
			return err
		}
	}
	pterm.Success.Printfln("%s is valid", sch)
	return nil
}
