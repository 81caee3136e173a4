package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/nightshift/errors"
)

type recorder struct {
	NopObserver
	states []State
	stages []Stage
	scores []int16
}

func (r *recorder) JobStateChanged(_ *Job, _, to State) { r.states = append(r.states, to) }
func (r *recorder) JobStageChanged(_ *Job, _, to Stage) { r.stages = append(r.stages, to) }
func (r *recorder) JobScoreChanged(_ *Job, s int16)     { r.scores = append(r.scores, s) }

func TestNewDefaults(t *testing.T) {
	j := New("M 31")
	assert.Equal(t, 10, j.Priority)
	assert.Equal(t, EstimateUnknown, j.EstimatedTime)
	assert.False(t, j.HasMinAltitude())
	assert.False(t, j.HasMinMoonSeparation())
	assert.Equal(t, StateIdle, j.State())
	assert.Equal(t, "M31", j.TargetName())
}

func TestObserverNotifiedOnChange(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)
	j := New("M42")
	require.NoError(t, q.Add(j))

	j.SetState(StateEvaluation)
	j.SetState(StateEvaluation)
	j.SetState(StateScheduled)
	j.SetStage(StageSlewing)
	j.SetScore(42)

	assert.Equal(t, []State{StateEvaluation, StateScheduled}, rec.states)
	assert.Equal(t, []Stage{StageSlewing}, rec.stages)
	assert.Equal(t, []int16{42}, rec.scores)
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	j := New("NGC 7000")
	j.Observe(Observers{a, b})
	j.SetState(StateBusy)
	assert.Equal(t, []State{StateBusy}, a.states)
	assert.Equal(t, []State{StateBusy}, b.states)
}

func TestReset(t *testing.T) {
	j := New("M51")
	j.SetStartupCondition(StartASAP)
	j.SetRepeats(3)
	j.StartupCondition = StartAt
	j.StartupTime = time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)
	j.RepeatsRemaining = 1
	j.EstimatedTime = 600
	j.SetState(StateAborted)
	j.SetStage(StageCapturing)

	j.Reset()
	assert.Equal(t, StateIdle, j.State())
	assert.Equal(t, StageIdle, j.Stage())
	assert.Equal(t, StartASAP, j.StartupCondition)
	assert.True(t, j.StartupTime.IsZero())
	assert.Equal(t, 3, j.RepeatsRemaining)
	assert.Equal(t, EstimateUnknown, j.EstimatedTime)
}

func TestQueue(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Add(New("a")))
	require.NoError(t, q.Add(New("b")))
	assert.True(t, errors.Is(q.Add(New("a")), errors.ErrConflict))

	q.Find("b").SetState(StateBusy)
	assert.Equal(t, "b", q.Busy().Name)
	assert.Equal(t, 1, q.Count(StateIdle))

	require.NoError(t, q.Remove("a"))
	assert.True(t, errors.IsNotFoundError(q.Remove("a")))
	assert.Equal(t, 1, q.Len())

	q.ResetAll()
	assert.Nil(t, q.Busy())
}

func TestSortByAltitudeIsPriorityFirstAndStable(t *testing.T) {
	mk := func(name string, prio int) *Job {
		j := New(name)
		j.Priority = prio
		return j
	}
	jobs := []*Job{mk("low-alt", 5), mk("tie-1", 5), mk("urgent", 1), mk("high-alt", 5), mk("tie-2", 5)}
	alt := map[string]float64{"low-alt": 20, "tie-1": 40, "urgent": 10, "high-alt": 70, "tie-2": 40}

	calls := 0
	SortByAltitude(jobs, func(j *Job) float64 {
		calls++
		return alt[j.Name]
	})
	assert.Equal(t, len(jobs), calls)

	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	// the urgent job is the lowest in the sky but has the best priority
	assert.Equal(t, []string{"urgent", "high-alt", "tie-1", "tie-2", "low-alt"}, names)
}

func TestSortByScore(t *testing.T) {
	a, b, c := New("a"), New("b"), New("c")
	a.SetScore(10)
	b.SetScore(50)
	c.SetScore(90)
	c.Priority = 20
	jobs := []*Job{a, c, b}
	SortByScore(jobs)
	assert.Equal(t, []*Job{b, a, c}, jobs)
}

func TestStepsString(t *testing.T) {
	assert.Equal(t, "None", UseNone.String())
	assert.Equal(t, "Track+Align+Guide", (UseTrack | UseAlign | UseGuide).String())
	assert.True(t, (UseTrack | UseFocus).Has(UseFocus))
	assert.False(t, UseTrack.Has(UseNone))
}

func TestClone(t *testing.T) {
	j := New("M1")
	j.CapturedFrames["/x"] = 2
	c := j.Clone()
	c.CapturedFrames["/x"] = 5
	assert.Equal(t, 2, j.CapturedFrames["/x"])
}
