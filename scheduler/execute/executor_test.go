package execute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/equipment/sim"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/pulse/async"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/sky"
)

var night = time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)

func newExecutor(t *testing.T, obs *sim.Observatory) *Executor {
	t.Helper()
	site := sky.Site{Name: "Madrid", Latitude: 40.4, Longitude: -3.7, Location: time.UTC}
	return New(obs.Services(), site, Options{}, zaptest.NewLogger(t).Sugar())
}

func newJob(steps job.Steps) *job.Job {
	j := job.New("M 42")
	j.RA = 5.58
	j.Dec = -5.39
	j.Sequence = "/seq/m42.esq"
	j.Steps = steps
	j.LightFramesRequired = true
	return j
}

// tickUntilDone ticks once per simulated second until the executor leaves
// the Running outcome.
func tickUntilDone(t *testing.T, e *Executor, now time.Time) Outcome {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if out := e.Tick(ctx, now.Add(time.Duration(i)*time.Second)); out != Running {
			return out
		}
	}
	t.Fatal("job still running after 60 ticks")
	return Running
}

func TestFullPipelineCompletes(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack | job.UseFocus | job.UseAlign | job.UseGuide)
	j.CapturedFrames["Light_L_300"] = 4

	e.Begin(context.Background(), j, time.Time{}, true)
	assert.Equal(t, job.StateBusy, j.State())

	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Nil(t, e.Current())

	for _, call := range []string{"mount.Slew", "focuser.Start", "aligner.CaptureAndSolve", "guider.StartAutoCalibrateGuide", "capture.Start"} {
		assert.Equal(t, 1, obs.CallCount(call), call)
	}
	assert.Equal(t, 1, obs.CallCount("guider.Abort"), "guiding stops with the job")
	assert.Equal(t, 0, obs.CallCount("capture.IgnoreSequenceHistory"))
	assert.Equal(t, "M42", obs.TargetName())
	assert.Equal(t, map[string]int{"Light_L_300": 4}, obs.FramesMap())
}

func TestReferenceImageUsesLoadAndSlew(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseAlign)
	j.FITSFile = "/ref/m42.fits"

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, 1, obs.CallCount("aligner.LoadAndSlew"))
	assert.Equal(t, 0, obs.CallCount("aligner.CaptureAndSolve"))
}

func TestCalibrationJobGoesStraightToCapture(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack | job.UseFocus | job.UseGuide)
	j.LightFramesRequired = false

	e.Begin(context.Background(), j, time.Time{}, false)
	e.Tick(context.Background(), night)
	assert.Equal(t, job.StageCapturing, j.Stage())
	assert.Equal(t, 0, obs.CallCount("mount.Slew"))

	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
}

func TestRepeatCompletesAfterRequiredRuns(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	j.CompletionCondition = job.FinishRepeat
	j.SetRepeats(3)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 0, j.RepeatsRemaining)
	assert.Equal(t, 3, obs.CallCount("capture.Start"))
	assert.Equal(t, 3, obs.CallCount("capture.IgnoreSequenceHistory"))
}

func TestLoopStartsAnotherBatch(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	j.CompletionCondition = job.FinishLoop

	e.Begin(ctx, j, time.Time{}, false)
	for i := 0; i < 10 && e.Batch() == 0; i++ {
		require.Equal(t, Running, e.Tick(ctx, night))
	}
	assert.Equal(t, 1, e.Batch())
	assert.Equal(t, job.StateBusy, j.State())
	assert.Equal(t, job.StageCapturing, j.Stage())
}

func TestFinishAtCompletesAtDeadline(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	j.CompletionCondition = job.FinishAt
	j.CompletionTime = night.Add(time.Hour)

	e.Begin(ctx, j, time.Time{}, false)
	assert.Equal(t, Running, e.Tick(ctx, night))
	assert.Equal(t, Running, e.Tick(ctx, night.Add(time.Minute)))

	assert.Equal(t, Finished, e.Tick(ctx, night.Add(time.Hour)))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 1, obs.CallCount("capture.Abort"))
	assert.Equal(t, 0, e.Batch())
}

func TestFocusFailureRetriesThenErrors(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseFocus)
	obs.FailNext(sim.OpFocus, 6)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateError, j.State())
	assert.Equal(t, 6, obs.CallCount("focuser.Start"))
	assert.Equal(t, 0, obs.CallCount("capture.Start"))
}

func TestFocusRecoversWithinRetries(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseFocus)
	obs.FailNext(sim.OpFocus, 2)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 3, obs.CallCount("focuser.Start"))
}

func TestFocuserWithoutAutofocusDropsStep(t *testing.T) {
	obs := sim.New()
	obs.SetCanAutoFocus(false)
	e := newExecutor(t, obs)
	j := newJob(job.UseFocus)

	e.Begin(context.Background(), j, time.Time{}, false)
	e.Tick(context.Background(), night)
	assert.False(t, j.Steps.Has(job.UseFocus))
	assert.Equal(t, job.StageCapturing, j.Stage())
	assert.Equal(t, 0, obs.CallCount("focuser.Start"))
}

func TestCaptureFailureWithLostGuidingRestartsGuiding(t *testing.T) {
	ctx := context.Background()
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseGuide)

	e.Begin(ctx, j, time.Time{}, false)
	for i := 0; i < 10 && j.Stage() != job.StageCapturing; i++ {
		e.Tick(ctx, night)
	}
	require.Equal(t, job.StageCapturing, j.Stage())

	require.NoError(t, obs.Services().Capture.Abort(ctx))
	obs.SetGuideState(equipment.GuideAborted)

	assert.Equal(t, Running, e.Tick(ctx, night))
	assert.Equal(t, job.StageGuiding, j.Stage())
	assert.Equal(t, 1, obs.CallCount("guider.ClearCalibration"))

	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 2, obs.CallCount("capture.Start"))
}

func TestCaptureFailureWithoutGuidingErrors(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	obs.FailNext(sim.OpCapture, 1)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateError, j.State())
}

func TestAlignFailureRetries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		resetModel  bool
		wantState   job.State
		wantSolves  int
		wantResets  int
		wantCapture int
	}{
		{name: "recovers", failures: 2, wantState: job.StateComplete, wantSolves: 3, wantCapture: 1},
		{name: "recovers with model reset", failures: 2, resetModel: true, wantState: job.StateComplete, wantSolves: 3, wantResets: 2, wantCapture: 1},
		{name: "gives up past the cap", failures: 1 + async.MaxFailureAttempts, resetModel: true, wantState: job.StateError, wantSolves: 1 + async.MaxFailureAttempts, wantResets: async.MaxFailureAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := sim.New(sim.WithMountUnparked())
			obs.FailNext(sim.OpAlign, tt.failures)
			e := newExecutor(t, obs)
			e.SetOptions(Options{ResetMountModelOnAlignFail: tt.resetModel})
			j := newJob(job.UseAlign)

			e.Begin(context.Background(), j, time.Time{}, false)
			assert.Equal(t, Finished, tickUntilDone(t, e, night))
			assert.Equal(t, tt.wantState, j.State())
			assert.Equal(t, tt.wantSolves, obs.CallCount("aligner.CaptureAndSolve"))
			assert.Equal(t, tt.wantResets, obs.CallCount("mount.ResetModel"))
			assert.Equal(t, tt.wantCapture, obs.CallCount("capture.Start"))
		})
	}
}

func TestGuideCalibrationFailureRetries(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		wantState  job.State
		wantStarts int
	}{
		{name: "recovers", failures: 2, wantState: job.StateComplete, wantStarts: 3},
		{name: "gives up past the cap", failures: 1 + async.MaxFailureAttempts, wantState: job.StateError, wantStarts: 1 + async.MaxFailureAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := sim.New()
			obs.FailNext(sim.OpGuide, tt.failures)
			e := newExecutor(t, obs)
			j := newJob(job.UseGuide)

			e.Begin(context.Background(), j, time.Time{}, false)
			assert.Equal(t, Finished, tickUntilDone(t, e, night))
			assert.Equal(t, tt.wantState, j.State())
			assert.Equal(t, tt.wantStarts, obs.CallCount("guider.StartAutoCalibrateGuide"))
			assert.Equal(t, tt.wantStarts-1, obs.CallCount("guider.ClearCalibration"), "restarts recalibrate")
			if tt.wantState == job.StateError {
				assert.Zero(t, obs.CallCount("capture.Start"))
			}
		})
	}
}

func TestRefusedCommandIsIssuedAgain(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	obs.FailCall("mount.Slew", 2, errors.New("bridge hiccup"))
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 3, obs.CallCount("mount.Slew"))
	assert.Equal(t, 1, obs.CallCount("capture.Start"))
}

func TestRefusedCommandErrorsPastCap(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	obs.FailCall("mount.Slew", 100, errors.New("bridge hiccup"))
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateError, j.State())
	assert.Equal(t, 1+async.MaxFailureAttempts, obs.CallCount("mount.Slew"))
	assert.Zero(t, obs.CallCount("capture.Start"))
}

func TestInvalidCommandFailsJobAtOnce(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	obs.FailCall("mount.Slew", 1, errors.NewInvalidRequestError("coordinates out of range"))
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, e.Tick(context.Background(), night))
	assert.Equal(t, job.StateError, j.State())
	assert.Equal(t, 1, obs.CallCount("mount.Slew"))
	assert.Nil(t, e.Current())
}

func TestRefusedRestartIsIssuedAgain(t *testing.T) {
	ctx := context.Background()
	obs := sim.New()
	obs.FailNext(sim.OpFocus, 1)
	core, logs := observer.New(zap.WarnLevel)
	site := sky.Site{Name: "Madrid", Latitude: 40.4, Longitude: -3.7, Location: time.UTC}
	e := New(obs.Services(), site, Options{}, zap.New(core).Sugar())
	j := newJob(job.UseFocus)

	e.Begin(ctx, j, time.Time{}, false)
	require.Equal(t, Running, e.Tick(ctx, night))
	require.Equal(t, job.StageFocusing, j.Stage())
	obs.FailCall("focuser.Start", 1, errors.New("bridge hiccup"))

	assert.Equal(t, Finished, tickUntilDone(t, e, night))
	assert.Equal(t, job.StateComplete, j.State())
	assert.Equal(t, 3, obs.CallCount("focuser.Start"))

	refused := logs.FilterMessage("Command failed, issuing it again").All()
	require.Len(t, refused, 1)
	assert.Equal(t, "focus", refused[0].ContextMap()["stage"])
	assert.Equal(t, "recoverable", refused[0].ContextMap()["error_kind"])
}

func TestAbortedJobResetsBatch(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	j.CompletionCondition = job.FinishLoop

	e.Begin(ctx, j, time.Time{}, false)
	for i := 0; i < 10 && e.Batch() == 0; i++ {
		require.Equal(t, Running, e.Tick(ctx, night))
	}
	require.Equal(t, 1, e.Batch())

	j.MinAltitude = 90
	assert.Equal(t, Finished, e.Tick(ctx, night))
	assert.Equal(t, job.StateAborted, j.State())
	assert.Equal(t, 0, e.Batch())
}

func TestMoonSeparationAbortsRunningJob(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(ctx, j, time.Time{}, false)
	require.Equal(t, Running, e.Tick(ctx, night))
	require.Equal(t, job.StageSlewing, j.Stage())

	j.MinMoonSeparation = 180
	assert.Equal(t, Finished, e.Tick(ctx, night))
	assert.Equal(t, job.StateAborted, j.State())
	assert.Equal(t, 1, obs.CallCount("mount.Abort"))
	assert.Nil(t, e.Current())
}

func TestAltitudeConstraintAbortsJob(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)
	j.MinAltitude = 90

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Finished, e.Tick(context.Background(), night))
	assert.Equal(t, job.StateAborted, j.State())
	assert.Equal(t, 0, obs.CallCount("mount.Slew"))
}

func TestAltitudeConstraintIgnoredWhileParked(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	j := newJob(job.UseNone)
	j.MinAltitude = 90

	e.Begin(context.Background(), j, time.Time{}, false)
	assert.Equal(t, Running, e.Tick(context.Background(), night))
	assert.Equal(t, job.StateBusy, j.State())
}

func TestTwilightRequestsShutdown(t *testing.T) {
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)
	j.EnforceTwilight = true

	e.Begin(context.Background(), j, night.Add(-time.Minute), true)
	assert.Equal(t, Shutdown, e.Tick(context.Background(), night))
	assert.Equal(t, job.StateAborted, j.State())
	assert.Nil(t, e.Current())
}

func TestLostMountRequestsShutdown(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(ctx, j, time.Time{}, false)
	require.Equal(t, Running, e.Tick(ctx, night))
	require.Equal(t, job.StageSlewing, j.Stage())

	obs.SetUnreachable("mount", true)
	assert.Equal(t, Shutdown, e.Tick(ctx, night))
	assert.Equal(t, job.StateAborted, j.State())
}

func TestAbortStopsCurrentAction(t *testing.T) {
	ctx := context.Background()
	obs := sim.New(sim.WithMountUnparked())
	e := newExecutor(t, obs)
	j := newJob(job.UseTrack)

	e.Begin(ctx, j, time.Time{}, false)
	e.Tick(ctx, night)
	e.Abort(ctx, "weather alert")

	assert.Equal(t, job.StateAborted, j.State())
	assert.Equal(t, job.StageIdle, j.Stage())
	assert.Equal(t, 1, obs.CallCount("mount.Abort"))
	assert.Nil(t, e.Current())
}

func TestRememberProgressSetsTargetName(t *testing.T) {
	obs := sim.New()
	e := newExecutor(t, obs)
	e.SetOptions(Options{RememberJobProgress: true})

	e.Begin(context.Background(), newJob(job.UseNone), time.Time{}, false)
	assert.Equal(t, "M42", obs.TargetName())
}
