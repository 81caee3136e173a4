// Package job holds the observation request record and the queue that owns
// every job. A Job carries only domain data: presentation layers, history and
// metrics learn about changes through an Observer.
package job

import (
	"time"
)

// Score constants. Scores are 16-bit; BadScore is the "cannot run" sentinel
// and no legitimately computed score reaches it.
const (
	BadScore  int16 = -1000
	HighScore int16 = 1000
)

// Estimated time sentinels, in seconds.
const (
	EstimateUnknown       int64 = -1
	EstimateIndeterminate int64 = -2
)

// Unset marks an optional altitude or moon separation constraint as absent.
const Unset = -1.0

// Job is one observation request.
type Job struct {
	Name     string
	Priority int // lower is more important

	RA       float64 // J2000 right ascension, hours
	Dec      float64 // J2000 declination, degrees
	FITSFile string  // reference image for blind pointing
	Sequence string  // capture sequence file

	StartupCondition     StartupCondition
	FileStartupCondition StartupCondition
	CulminationOffset    int // minutes
	StartupTime          time.Time

	CompletionCondition CompletionCondition
	CompletionTime      time.Time
	RepeatsRequired     int
	RepeatsRemaining    int

	MinAltitude       float64
	MinMoonSeparation float64
	EnforceWeather    bool
	EnforceTwilight   bool

	Steps Steps

	EstimatedTime       int64 // seconds
	LightFramesRequired bool
	InSequenceFocus     bool
	SequenceCount       int
	CompletedCount      int
	CapturedFrames      map[string]int // output signature -> frames already on disk

	state    State
	stage    Stage
	score    int16
	observer Observer
}

// New returns a job with default constraints and priority.
func New(name string) *Job {
	return &Job{
		Name:              name,
		Priority:          10,
		MinAltitude:       Unset,
		MinMoonSeparation: Unset,
		EstimatedTime:     EstimateUnknown,
		CapturedFrames:    make(map[string]int),
	}
}

// State returns the lifecycle state.
func (j *Job) State() State { return j.state }

// Stage returns the pipeline stage.
func (j *Job) Stage() Stage { return j.stage }

// Score returns the last computed score.
func (j *Job) Score() int16 { return j.score }

// SetState changes the lifecycle state and notifies the observer.
func (j *Job) SetState(s State) {
	if j.state == s {
		return
	}
	old := j.state
	j.state = s
	if j.observer != nil {
		j.observer.JobStateChanged(j, old, s)
	}
}

// SetStage changes the pipeline stage and notifies the observer.
func (j *Job) SetStage(s Stage) {
	if j.stage == s {
		return
	}
	old := j.stage
	j.stage = s
	if j.observer != nil {
		j.observer.JobStageChanged(j, old, s)
	}
}

// SetScore records a score and notifies the observer.
func (j *Job) SetScore(score int16) {
	j.score = score
	if j.observer != nil {
		j.observer.JobScoreChanged(j, score)
	}
}

// Observe attaches an observer, replacing any previous one.
func (j *Job) Observe(o Observer) { j.observer = o }

// HasMinAltitude reports whether an altitude constraint is set.
func (j *Job) HasMinAltitude() bool { return j.MinAltitude > 0 }

// HasMinMoonSeparation reports whether a moon separation constraint is set.
func (j *Job) HasMinMoonSeparation() bool { return j.MinMoonSeparation > 0 }

// TargetName is the name sent to the capture service.
func (j *Job) TargetName() string {
	out := make([]rune, 0, len(j.Name))
	for _, r := range j.Name {
		if r != ' ' {
			out = append(out, r)
		}
	}
	return string(out)
}

// SetStartupCondition sets both the working and the file startup condition.
func (j *Job) SetStartupCondition(c StartupCondition) {
	j.StartupCondition = c
	j.FileStartupCondition = c
}

// SetRepeats sets the required and remaining repeat count.
func (j *Job) SetRepeats(n int) {
	j.RepeatsRequired = n
	j.RepeatsRemaining = n
}

// Reset returns the job to Idle with its authored startup condition and
// repeat count restored.
func (j *Job) Reset() {
	j.SetState(StateIdle)
	j.SetStage(StageIdle)
	j.StartupCondition = j.FileStartupCondition
	j.RepeatsRemaining = j.RepeatsRequired
	j.EstimatedTime = EstimateUnknown
	if j.FileStartupCondition != StartAt {
		j.StartupTime = time.Time{}
	}
}

// Clone returns a deep copy without the observer.
func (j *Job) Clone() *Job {
	c := *j
	c.observer = nil
	c.CapturedFrames = make(map[string]int, len(j.CapturedFrames))
	for k, v := range j.CapturedFrames {
		c.CapturedFrames[k] = v
	}
	return &c
}
