// Package schedfile reads and writes schedule lists (.esl): the jobs of a
// night plus the startup and shutdown procedures around them.
package schedfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/orchestrate"
)

// Version is the schedule list format written by Save.
const Version = "1.4"

// Supported is the range of format versions Parse accepts.
const Supported = ">= 1.0, < 2.0"

// timeLayout is how start and completion times are written; they are read
// and written in the site's zone.
const timeLayout = "2006-01-02T15:04:05"

// Schedule is a loaded schedule list.
type Schedule struct {
	Path      string
	Version   string
	Profile   string
	Jobs      []*job.Job
	Procedure orchestrate.Procedure
}

type xmlList struct {
	XMLName  xml.Name   `xml:"SchedulerList"`
	Version  string     `xml:"version,attr"`
	Profile  string     `xml:"Profile,omitempty"`
	Jobs     []xmlJob   `xml:"Job"`
	Startup  []xmlValue `xml:"StartupProcedure>Procedure"`
	Shutdown []xmlValue `xml:"ShutdownProcedure>Procedure"`
}

type xmlJob struct {
	Name        string     `xml:"Name"`
	Priority    string     `xml:"Priority"`
	RA          string     `xml:"Coordinates>J2000RA"`
	Dec         string     `xml:"Coordinates>J2000DE"`
	FITS        string     `xml:"FITS,omitempty"`
	Sequence    string     `xml:"Sequence"`
	Startup     []xmlValue `xml:"StartupCondition>Condition"`
	Constraints []xmlValue `xml:"Constraints>Constraint"`
	Completion  []xmlValue `xml:"CompletionCondition>Condition"`
	Steps       []string   `xml:"Steps>Step"`
}

// xmlValue is an element whose text names an option and whose optional
// value attribute carries its parameter.
type xmlValue struct {
	Value string `xml:"value,attr,omitempty"`
	Name  string `xml:",chardata"`
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrInvalidRequest, format, args...)
}

// Load reads the schedule list at path. Times without a zone are read in loc.
func Load(path string, loc *time.Location) (*Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithHint(
				errors.NewNotFoundError("schedule file %s", path),
				"pass the path of an .esl schedule list")
		}
		return nil, errors.Wrapf(err, "failed to open schedule file %s", path)
	}
	defer f.Close()

	s, err := Parse(f, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "schedule file %s", path)
	}
	s.Path = path
	return s, nil
}

// Parse decodes a schedule list document.
func Parse(r io.Reader, loc *time.Location) (*Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	var doc xmlList
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.WithHint(invalid("%s", err.Error()),
			"a schedule list is an XML document rooted at <SchedulerList>")
	}
	if err := checkVersion(doc.Version); err != nil {
		return nil, err
	}

	s := &Schedule{Version: doc.Version, Profile: strings.TrimSpace(doc.Profile)}
	for i, x := range doc.Jobs {
		j, err := decodeJob(x, loc)
		if err != nil {
			return nil, errors.Wrapf(err, "job %d", i+1)
		}
		s.Jobs = append(s.Jobs, j)
	}
	s.Procedure = decodeProcedure(doc.Startup, doc.Shutdown)
	return s, nil
}

func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return errors.WithHint(invalid("invalid schedule version %q", v),
			"the version attribute looks like '1.4'")
	}
	c, err := semver.NewConstraint(Supported)
	if err != nil {
		return errors.Wrap(err, "schedule version constraint")
	}
	if !c.Check(ver) {
		return errors.WithHintf(invalid("unsupported schedule version %s", v),
			"this build reads schedule versions %s", Supported)
	}
	return nil
}

func decodeJob(x xmlJob, loc *time.Location) (*job.Job, error) {
	j := job.New(strings.TrimSpace(x.Name))
	if p := strings.TrimSpace(x.Priority); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, invalid("priority %q is not a number", p)
		}
		j.Priority = n
	}

	var err error
	if j.RA, err = ParseHours(x.RA); err != nil {
		return nil, err
	}
	if j.Dec, err = ParseDegrees(x.Dec); err != nil {
		return nil, err
	}
	j.FITSFile = strings.TrimSpace(x.FITS)
	j.Sequence = strings.TrimSpace(x.Sequence)

	for _, c := range x.Startup {
		switch strings.TrimSpace(c.Name) {
		case "ASAP":
			j.SetStartupCondition(job.StartASAP)
		case "Culmination":
			j.SetStartupCondition(job.StartCulmination)
			off, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
			if err != nil {
				return nil, invalid("culmination offset %q is not a number", c.Value)
			}
			j.CulminationOffset = int(off)
		case "At":
			t, err := parseTime(c.Value, loc)
			if err != nil {
				return nil, err
			}
			j.SetStartupCondition(job.StartAt)
			j.StartupTime = t
		default:
			return nil, invalid("unknown startup condition %q", c.Name)
		}
	}

	for _, c := range x.Constraints {
		switch strings.TrimSpace(c.Name) {
		case "MinimumAltitude":
			v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
			if err != nil {
				return nil, invalid("minimum altitude %q is not a number", c.Value)
			}
			j.MinAltitude = v
		case "MoonSeparation":
			v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
			if err != nil {
				return nil, invalid("moon separation %q is not a number", c.Value)
			}
			j.MinMoonSeparation = v
		case "EnforceWeather":
			j.EnforceWeather = true
		case "EnforceTwilight":
			j.EnforceTwilight = true
		default:
			return nil, invalid("unknown constraint %q", c.Name)
		}
	}

	for _, c := range x.Completion {
		switch strings.TrimSpace(c.Name) {
		case "Sequence":
			j.CompletionCondition = job.FinishSequence
		case "Repeat":
			n, err := strconv.Atoi(strings.TrimSpace(c.Value))
			if err != nil {
				return nil, invalid("repeat count %q is not a number", c.Value)
			}
			j.CompletionCondition = job.FinishRepeat
			j.SetRepeats(n)
		case "Loop":
			j.CompletionCondition = job.FinishLoop
		case "At":
			t, err := parseTime(c.Value, loc)
			if err != nil {
				return nil, err
			}
			j.CompletionCondition = job.FinishAt
			j.CompletionTime = t
		default:
			return nil, invalid("unknown completion condition %q", c.Name)
		}
	}

	for _, st := range x.Steps {
		found := false
		for _, sn := range job.StepNames {
			if sn.Name == strings.TrimSpace(st) {
				j.Steps |= sn.Step
				found = true
			}
		}
		if !found {
			return nil, invalid("unknown step %q", st)
		}
	}

	if err := Validate(j); err != nil {
		return nil, err
	}
	return j, nil
}

func decodeProcedure(startup, shutdown []xmlValue) orchestrate.Procedure {
	var p orchestrate.Procedure
	for _, v := range startup {
		switch strings.TrimSpace(v.Name) {
		case "StartupScript":
			p.StartupScript = strings.TrimSpace(v.Value)
		case "UnparkDome":
			p.UnparkDome = true
		case "UnparkMount":
			p.UnparkMount = true
		case "UnparkCap":
			p.UnparkCap = true
		}
	}
	for _, v := range shutdown {
		switch strings.TrimSpace(v.Name) {
		case "WarmCCD":
			p.WarmCCD = true
		case "ParkCap":
			p.ParkCap = true
		case "ParkMount":
			p.ParkMount = true
		case "ParkDome":
			p.ParkDome = true
		case "ShutdownScript":
			p.ShutdownScript = strings.TrimSpace(v.Value)
		}
	}
	return p
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, v, loc)
	if err != nil {
		return time.Time{}, errors.WithHint(invalid("invalid time %q", v),
			"times are written as 2006-01-02T15:04:05")
	}
	return t, nil
}

// Validate checks the fields a job needs before it can be scheduled.
func Validate(j *job.Job) error {
	switch {
	case j.Name == "":
		return errors.WithHint(invalid("job has no name"), "every <Job> needs a <Name>")
	case j.Sequence == "":
		return errors.WithHintf(invalid("job %s has no capture sequence", j.Name),
			"add a <Sequence> element pointing at an .esq file")
	case j.RA < 0 || j.RA >= 24:
		return invalid("job %s: right ascension %.4f is outside 0..24 hours", j.Name, j.RA)
	case j.Dec < -90 || j.Dec > 90:
		return invalid("job %s: declination %.4f is outside -90..90 degrees", j.Name, j.Dec)
	case j.CompletionCondition == job.FinishRepeat && j.RepeatsRequired < 1:
		return invalid("job %s: repeat count must be at least 1", j.Name)
	}
	return nil
}

// Marshal encodes s as a schedule list document.
func Marshal(s *Schedule, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	doc := xmlList{Version: Version, Profile: s.Profile}
	for _, j := range s.Jobs {
		if err := Validate(j); err != nil {
			return nil, err
		}
		doc.Jobs = append(doc.Jobs, encodeJob(j, loc))
	}
	doc.Startup, doc.Shutdown = encodeProcedure(s.Procedure)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode schedule")
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Save writes s to path through a temporary file.
func Save(path string, s *Schedule, loc *time.Location) error {
	data, err := Marshal(s, loc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".schedule-*.esl")
	if err != nil {
		return errors.Wrapf(err, "failed to write schedule %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "failed to write schedule %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "failed to write schedule %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "failed to replace schedule %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func encodeJob(j *job.Job, loc *time.Location) xmlJob {
	x := xmlJob{
		Name:     j.Name,
		Priority: strconv.Itoa(j.Priority),
		RA:       formatFloat(j.RA),
		Dec:      formatFloat(j.Dec),
		FITS:     j.FITSFile,
		Sequence: j.Sequence,
	}

	switch j.FileStartupCondition {
	case job.StartASAP:
		x.Startup = []xmlValue{{Name: "ASAP"}}
	case job.StartCulmination:
		x.Startup = []xmlValue{{Name: "Culmination", Value: strconv.Itoa(j.CulminationOffset)}}
	case job.StartAt:
		x.Startup = []xmlValue{{Name: "At", Value: j.StartupTime.In(loc).Format(timeLayout)}}
	}

	if j.HasMinAltitude() {
		x.Constraints = append(x.Constraints, xmlValue{Name: "MinimumAltitude", Value: formatFloat(j.MinAltitude)})
	}
	if j.HasMinMoonSeparation() {
		x.Constraints = append(x.Constraints, xmlValue{Name: "MoonSeparation", Value: formatFloat(j.MinMoonSeparation)})
	}
	if j.EnforceWeather {
		x.Constraints = append(x.Constraints, xmlValue{Name: "EnforceWeather"})
	}
	if j.EnforceTwilight {
		x.Constraints = append(x.Constraints, xmlValue{Name: "EnforceTwilight"})
	}

	switch j.CompletionCondition {
	case job.FinishSequence:
		x.Completion = []xmlValue{{Name: "Sequence"}}
	case job.FinishRepeat:
		x.Completion = []xmlValue{{Name: "Repeat", Value: strconv.Itoa(j.RepeatsRequired)}}
	case job.FinishLoop:
		x.Completion = []xmlValue{{Name: "Loop"}}
	case job.FinishAt:
		x.Completion = []xmlValue{{Name: "At", Value: j.CompletionTime.In(loc).Format(timeLayout)}}
	}

	for _, sn := range job.StepNames {
		if j.Steps.Has(sn.Step) {
			x.Steps = append(x.Steps, sn.Name)
		}
	}
	return x
}

func encodeProcedure(p orchestrate.Procedure) (startup, shutdown []xmlValue) {
	if p.StartupScript != "" {
		startup = append(startup, xmlValue{Name: "StartupScript", Value: p.StartupScript})
	}
	for _, o := range []struct {
		on   bool
		name string
	}{{p.UnparkDome, "UnparkDome"}, {p.UnparkMount, "UnparkMount"}, {p.UnparkCap, "UnparkCap"}} {
		if o.on {
			startup = append(startup, xmlValue{Name: o.name})
		}
	}

	for _, o := range []struct {
		on   bool
		name string
	}{{p.WarmCCD, "WarmCCD"}, {p.ParkCap, "ParkCap"}, {p.ParkMount, "ParkMount"}, {p.ParkDome, "ParkDome"}} {
		if o.on {
			shutdown = append(shutdown, xmlValue{Name: o.name})
		}
	}
	if p.ShutdownScript != "" {
		shutdown = append(shutdown, xmlValue{Name: "ShutdownScript", Value: p.ShutdownScript})
	}
	return startup, shutdown
}

// String summarises the schedule for logs.
func (s *Schedule) String() string {
	return fmt.Sprintf("%s (%d jobs, version %s)", s.Path, len(s.Jobs), s.Version)
}
