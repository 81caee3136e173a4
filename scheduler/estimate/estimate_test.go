package estimate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/sequence"
)

func lightItem(count int) sequence.Item {
	return sequence.Item{
		Exposure:      60,
		Delay:         0,
		Type:          sequence.FrameLight,
		TypeName:      "Light",
		Filter:        "L",
		FilterEnabled: true,
		Count:         count,
		FITSDirectory: "/data",
	}
}

func newEstimator(t *testing.T, seqs map[string]*sequence.Sequence, onDisk map[string]int) *Estimator {
	e := New(Options{RememberJobProgress: true, DitherEnabled: true, DitherFrames: 1}, zaptest.NewLogger(t).Sugar())
	e.Load = func(path string) (*sequence.Sequence, error) {
		if s, ok := seqs[path]; ok {
			return s, nil
		}
		return nil, errors.NewNotFoundError("sequence %s", path)
	}
	e.Count = func(dir, prefix string) (int, error) { return onDisk[dir], nil }
	return e
}

func TestEstimateWithPipelineOverheads(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"m31.esq": {Items: []sequence.Item{lightItem(10)}}}
	e := newEstimator(t, seqs, nil)
	j := job.New("M31")
	j.Sequence = "m31.esq"
	j.Steps = job.UseTrack | job.UseFocus | job.UseAlign | job.UseGuide

	require.NoError(t, e.Estimate([]*job.Job{j}, j))
	// 10*60 imaging + 10*15 dither + 30+120+30+120 overheads
	assert.Equal(t, int64(600+150+300), j.EstimatedTime)
	assert.True(t, j.LightFramesRequired)
	assert.Equal(t, 10, j.SequenceCount)
}

func TestEstimateInSequenceFocusAndRepeats(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"s": {Autofocus: true, Items: []sequence.Item{lightItem(4)}}}
	e := newEstimator(t, seqs, nil)
	j := job.New("T")
	j.Sequence = "s"
	j.CompletionCondition = job.FinishRepeat
	j.SetRepeats(2)

	require.NoError(t, e.Estimate([]*job.Job{j}, j))
	assert.True(t, j.InSequenceFocus)
	assert.Equal(t, int64((4*60+4*30)*3), j.EstimatedTime)
}

func TestEstimateSubtractsCapturedFrames(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"s": {Items: []sequence.Item{lightItem(10)}}}
	e := newEstimator(t, seqs, map[string]int{"/data/M1/Light/L": 4})
	j := job.New("M 1")
	j.Sequence = "s"

	require.NoError(t, e.Estimate([]*job.Job{j}, j))
	assert.Equal(t, int64(6*60), j.EstimatedTime)
	assert.Equal(t, 4, j.CompletedCount)
	assert.Equal(t, map[string]int{"/data/M1/Light/L": 4}, j.CapturedFrames)
}

func TestEstimateAlreadyComplete(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"s": {Items: []sequence.Item{lightItem(5)}}}
	e := newEstimator(t, seqs, map[string]int{"/data/M1/Light/L": 5})
	j := job.New("M1")
	j.Sequence = "s"

	require.NoError(t, e.Estimate([]*job.Job{j}, j))
	assert.Equal(t, int64(0), j.EstimatedTime)
	assert.False(t, j.LightFramesRequired)
}

func TestEstimateCompletedJobFramesNotReused(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"s": {Items: []sequence.Item{lightItem(5)}}}
	e := newEstimator(t, seqs, map[string]int{"/data/M1/Light/L": 5})
	done := job.New("M1")
	done.Sequence = "s"
	done.SetState(job.StateComplete)
	again := job.New("M1 ")
	again.Sequence = "s"

	require.NoError(t, e.Estimate([]*job.Job{done, again}, again))
	assert.Equal(t, 0, e.Captured("/data/M1/Light/L"))
	assert.Equal(t, int64(5*60), again.EstimatedTime)
}

func TestEstimateIndeterminate(t *testing.T) {
	remote := lightItem(3)
	remote.Upload = sequence.UploadRemote
	seqs := map[string]*sequence.Sequence{
		"remote": {Items: []sequence.Item{remote}},
		"loop":   {Items: []sequence.Item{lightItem(3)}},
	}
	e := newEstimator(t, seqs, nil)

	r := job.New("R")
	r.Sequence = "remote"
	require.NoError(t, e.Estimate([]*job.Job{r}, r))
	assert.Equal(t, job.EstimateIndeterminate, r.EstimatedTime)
	assert.True(t, r.LightFramesRequired)

	l := job.New("L")
	l.Sequence = "loop"
	l.CompletionCondition = job.FinishLoop
	require.NoError(t, e.Estimate([]*job.Job{l}, l))
	assert.Equal(t, job.EstimateIndeterminate, l.EstimatedTime)
	assert.True(t, l.LightFramesRequired)
}

func TestEstimateFixedWindow(t *testing.T) {
	seqs := map[string]*sequence.Sequence{"s": {Items: []sequence.Item{lightItem(3)}}}
	e := newEstimator(t, seqs, nil)
	start := time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)
	j := job.New("W")
	j.Sequence = "s"
	j.SetStartupCondition(job.StartAt)
	j.StartupTime = start
	j.CompletionCondition = job.FinishAt
	j.CompletionTime = start.Add(90 * time.Minute)

	require.NoError(t, e.Estimate([]*job.Job{j}, j))
	assert.Equal(t, int64(5400), j.EstimatedTime)
}

func TestEstimateMissingSequence(t *testing.T) {
	e := newEstimator(t, nil, nil)
	j := job.New("X")
	j.Sequence = "missing"
	err := e.Estimate([]*job.Job{j}, j)
	assert.True(t, errors.IsNotFoundError(err))
}
