// Package execute runs the acquisition pipeline of the current job: slew,
// focus, align, guide and capture. Each stage issues one command and then
// polls its status once per tick. Live constraints are re-checked on every
// tick before the stage is polled.
package execute

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/pulse/async"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/sky/astro"
)

// Outcome tells the control loop what to do after a tick.
type Outcome int

const (
	Running  Outcome = iota // keep the job driver armed
	Finished                // the job left the pipeline, evaluate again
	Shutdown                // the job was aborted and the observatory must shut down
)

var outcomeNames = [...]string{"running", "finished", "shutdown"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Options tune the pipeline.
type Options struct {
	RememberJobProgress        bool
	ResetMountModelBeforeJob   bool
	ResetMountModelOnAlignFail bool
	FocusUseFullField          bool
}

// Executor drives one job at a time. It is not safe for concurrent use.
type Executor struct {
	svc  equipment.Services
	site sky.Site
	opts Options
	log  *zap.SugaredLogger

	job         *job.Job
	preDawn     time.Time
	dome        bool
	autofocused bool
	batch       int

	focusFail   *async.RetryCounter
	alignFail   *async.RetryCounter
	guideFail   *async.RetryCounter
	captureFail *async.RetryCounter
	statusFail  *async.RetryCounter
	commandFail *async.RetryCounter

	// retry re-issues a refused command on the next tick.
	retry func(context.Context, time.Time) Outcome
}

// New returns an idle executor.
func New(svc equipment.Services, site sky.Site, opts Options, log *zap.SugaredLogger) *Executor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		svc:         svc,
		site:        site,
		opts:        opts,
		log:         logger.AddJobSymbol(log),
		focusFail:   async.NewRetryCounter("focus"),
		alignFail:   async.NewRetryCounter("align"),
		guideFail:   async.NewRetryCounter("guide"),
		captureFail: async.NewRetryCounter("capture"),
		statusFail:  async.NewRetryCounter("status"),
		commandFail: async.NewRetryCounter("command"),
	}
}

// SetOptions replaces the options for the following stages.
func (e *Executor) SetOptions(opts Options) { e.opts = opts }

// Current returns the running job, or nil.
func (e *Executor) Current() *job.Job { return e.job }

// Batch returns how many extra capture batches the current job has run.
func (e *Executor) Batch() int { return e.batch }

// Begin makes j the running job. preDawn is the cutoff after which twilight
// enforcing jobs abort; dome tells whether the dome is part of the procedure.
func (e *Executor) Begin(ctx context.Context, j *job.Job, preDawn time.Time, dome bool) {
	if j.CompletionCondition == job.FinishSequence && e.opts.RememberJobProgress {
		if err := e.svc.Capture.SetTargetName(ctx, j.TargetName()); err != nil {
			e.log.Warnw("Failed to set target name", logger.FieldJob, j.Name, logger.FieldError, err)
		}
	}
	e.job = j
	e.preDawn = preDawn
	e.dome = dome
	e.autofocused = false
	e.retry = nil
	for _, c := range []*async.RetryCounter{e.focusFail, e.alignFail, e.guideFail, e.captureFail, e.statusFail, e.commandFail} {
		c.Reset()
	}
	j.SetState(job.StateBusy)
	e.log.Infow("Executing job",
		logger.FieldJob, j.Name,
		logger.FieldPriority, j.Priority,
		"steps", j.Steps.String(),
		"pre_dawn", preDawn)
}

// SetPreDawn moves the twilight cutoff of the running job.
func (e *Executor) SetPreDawn(t time.Time) { e.preDawn = t }

// Interrupt stops whatever the current stage is doing, including guiding.
// Failures are logged and otherwise ignored.
func (e *Executor) Interrupt(ctx context.Context) {
	if e.job == nil {
		return
	}
	e.stopCurrentAction(ctx)
	e.stopGuiding(ctx)
}

// Abort interrupts the current job, marks it Aborted and releases it.
func (e *Executor) Abort(ctx context.Context, reason string) {
	j := e.job
	if j == nil {
		return
	}
	e.log.Warnw("Aborting job", logger.FieldJob, j.Name, "reason", reason)
	e.Interrupt(ctx)
	j.SetState(job.StateAborted)
	j.SetStage(job.StageIdle)
	e.job = nil
	e.retry = nil
}

// Reset forgets the current job and every counter.
func (e *Executor) Reset() {
	e.job = nil
	e.batch = 0
	e.autofocused = false
	e.preDawn = time.Time{}
	e.retry = nil
	e.commandFail.Reset()
	e.focusFail.Reset()
	e.alignFail.Reset()
	e.guideFail.Reset()
	e.captureFail.Reset()
	e.statusFail.Reset()
}

// Tick checks the live constraints and advances the current stage.
func (e *Executor) Tick(ctx context.Context, now time.Time) Outcome {
	j := e.job
	if j == nil {
		return Finished
	}
	if out, stop := e.guards(ctx, now); stop {
		return out
	}
	if e.retry != nil {
		retry := e.retry
		e.retry = nil
		return retry(ctx, now)
	}

	switch j.Stage() {
	case job.StageIdle:
		return e.next(ctx, now)
	case job.StageSlewing, job.StageReslewing:
		return e.pollSlew(ctx, now)
	case job.StageFocusing:
		return e.pollFocus(ctx, now)
	case job.StageAligning:
		return e.pollAlign(ctx, now)
	case job.StageGuiding:
		return e.pollGuide(ctx, now)
	case job.StageCapturing:
		return e.pollCapture(ctx, now)
	}
	return Running
}

func target(j *job.Job) astro.Equatorial {
	return astro.Equatorial{RA: j.RA, Dec: j.Dec}
}

// guards enforces the completion time and the live observing constraints.
func (e *Executor) guards(ctx context.Context, now time.Time) (Outcome, bool) {
	j := e.job

	if j.CompletionCondition == job.FinishAt && j.State() == job.StateBusy && !now.Before(j.CompletionTime) {
		return e.findNextJob(ctx, now), true
	}

	if j.HasMinAltitude() {
		alt := e.site.Altitude(target(j), now)
		if alt < j.MinAltitude && !e.mountParked(ctx) {
			e.violation(j, "altitude below minimum",
				logger.FieldAltitude, alt, "min_altitude", j.MinAltitude)
			j.SetState(job.StateAborted)
			e.Interrupt(ctx)
			return e.findNextJob(ctx, now), true
		}
	}

	if j.HasMinMoonSeparation() {
		sep := e.site.MoonSeparation(target(j), now)
		if sep < j.MinMoonSeparation && !e.mountParked(ctx) {
			e.violation(j, "moon separation below minimum",
				"separation", sep, "min_separation", j.MinMoonSeparation)
			j.SetState(job.StateAborted)
			e.Interrupt(ctx)
			return e.findNextJob(ctx, now), true
		}
	}

	if j.EnforceTwilight && !e.preDawn.IsZero() && now.After(e.preDawn) {
		if !e.mountParked(ctx) || (e.dome && !e.domeParked(ctx)) {
			e.violation(j, "approaching astronomical dawn", "pre_dawn", e.preDawn)
			j.SetState(job.StateAborted)
			e.Interrupt(ctx)
			e.job = nil
			return Shutdown, true
		}
	}
	return Running, false
}

func (e *Executor) violation(j *job.Job, what string, kv ...interface{}) {
	err := errors.Wrap(async.ErrPolicyViolation, what)
	fields := append([]interface{}{
		logger.FieldJob, j.Name,
		logger.FieldError, err,
		logger.FieldErrorKind, async.Classify(err).String(),
	}, kv...)
	e.log.Warnw("Constraint violated, aborting job", fields...)
}

// mountParked treats an unanswered query as unparked so that guards err on
// the side of aborting.
func (e *Executor) mountParked(ctx context.Context) bool {
	st, err := e.svc.Mount.ParkingStatus(ctx)
	return err == nil && st.IsParked()
}

func (e *Executor) domeParked(ctx context.Context) bool {
	st, err := e.svc.Dome.ParkingStatus(ctx)
	return err == nil && st.IsParked()
}

// next issues the command that follows the current stage.
func (e *Executor) next(ctx context.Context, now time.Time) Outcome {
	j := e.job
	action := NextAction(Pipeline{
		Stage:           j.Stage(),
		Steps:           j.Steps,
		NeedsLight:      j.LightFramesRequired,
		Autofocused:     e.autofocused,
		InSequenceFocus: j.InSequenceFocus,
	})

	var err error
	switch action {
	case ActionSlew:
		err = e.startSlew(ctx)
	case ActionFocus:
		var advanced bool
		advanced, err = e.startFocusing(ctx)
		if err == nil && advanced {
			return e.next(ctx, now)
		}
	case ActionAlign:
		err = e.startAstrometry(ctx)
	case ActionReslew:
		j.SetStage(job.StageReslewing)
	case ActionGuide:
		err = e.startGuiding(ctx, false)
	case ActionCapture:
		err = e.startCapture(ctx)
	}
	if err != nil {
		return e.commandFailed(ctx, now, action.String(), err, e.next)
	}
	e.commandFail.Reset()
	return Running
}

// attempt issues a command from within a stage, for example a restart after
// a failed focus run. A refused command is attempted again on the next tick.
// cmd reports true when the stage advanced without issuing anything.
func (e *Executor) attempt(ctx context.Context, now time.Time, what string, cmd func(context.Context) (bool, error)) Outcome {
	advanced, err := cmd(ctx)
	if err != nil {
		return e.commandFailed(ctx, now, what, err, func(ctx context.Context, now time.Time) Outcome {
			return e.attempt(ctx, now, what, cmd)
		})
	}
	e.commandFail.Reset()
	if advanced {
		return e.next(ctx, now)
	}
	return Running
}

// commandFailed handles a command the equipment did not accept. A service
// that cannot be reached takes the observatory down. Retryable failures
// schedule retry for the next tick until the command cap is reached; any
// other failure fails the job.
func (e *Executor) commandFailed(ctx context.Context, now time.Time, what string, err error, retry func(context.Context, time.Time) Outcome) Outcome {
	j := e.job
	ec := async.ClassifyError(what, err)
	if errors.IsServiceUnavailableError(err) {
		e.log.Errorw("Command failed",
			logger.FieldJob, j.Name,
			logger.FieldStage, ec.Stage,
			logger.FieldError, err,
			logger.FieldErrorKind, ec.Kind.String())
		return e.connectionLost(ctx)
	}
	if ec.Retryable && e.commandFail.Next() {
		e.log.Warnw("Command failed, issuing it again",
			logger.FieldJob, j.Name,
			logger.FieldStage, ec.Stage,
			logger.FieldAttempt, e.commandFail.Count(),
			logger.FieldError, err,
			logger.FieldErrorKind, ec.Kind.String())
		e.retry = retry
		return Running
	}
	if e.commandFail.Exhausted() {
		err = errors.WithSecondaryError(e.commandFail.Err(), err)
	}
	e.commandFail.Reset()
	e.log.Errorw("Command failed",
		logger.FieldJob, j.Name,
		logger.FieldStage, ec.Stage,
		logger.FieldError, err,
		logger.FieldErrorKind, ec.Kind.String())
	j.SetState(job.StateError)
	return e.findNextJob(ctx, now)
}

func (e *Executor) connectionLost(ctx context.Context) Outcome {
	e.log.Errorw("Connection to equipment lost, aborting", logger.FieldJob, e.job.Name)
	e.job.SetState(job.StateAborted)
	e.job = nil
	return Shutdown
}

// statusFailed handles a failed status query. Busy replies are re-polled,
// an unreachable service takes the observatory down and other failures are
// retried up to the cap.
func (e *Executor) statusFailed(ctx context.Context, now time.Time, what string, err error) Outcome {
	ec := async.ClassifyError(what, err)
	switch ec.Kind {
	case async.Transient:
		return Running
	case async.Fatal:
		if errors.IsServiceUnavailableError(err) {
			return e.connectionLost(ctx)
		}
	}
	if e.statusFail.Next() {
		e.log.Warnw("Status query failed",
			logger.FieldJob, e.job.Name,
			logger.FieldMethod, ec.Stage,
			logger.FieldAttempt, e.statusFail.Count(),
			logger.FieldError, err,
			logger.FieldErrorKind, ec.Kind.String())
		return Running
	}
	e.log.Errorw("Status query keeps failing",
		logger.FieldJob, e.job.Name,
		logger.FieldMethod, ec.Stage,
		logger.FieldError, errors.WithSecondaryError(e.statusFail.Err(), err),
		logger.FieldErrorKind, ec.Kind.String())
	e.statusFail.Reset()
	e.job.SetState(job.StateError)
	return e.findNextJob(ctx, now)
}

func (e *Executor) pollSlew(ctx context.Context, now time.Time) Outcome {
	j := e.job
	st, err := e.svc.Mount.SlewStatus(ctx)
	if err != nil {
		return e.statusFailed(ctx, now, "mount.SlewStatus", err)
	}
	e.statusFail.Reset()

	moving := false
	if e.dome {
		if m, err := e.svc.Dome.IsMoving(ctx); err == nil && m {
			moving = true
		}
	}

	// The corrective slew is issued by the aligner, so an idle mount has
	// nothing left to do.
	settled := st == equipment.StateOk ||
		(j.Stage() == job.StageReslewing && st == equipment.StateIdle)

	switch {
	case settled && !moving:
		if j.Stage() == job.StageReslewing {
			e.log.Infow("Repositioning complete", logger.FieldJob, j.Name)
			j.SetStage(job.StageReslewingComplete)
		} else {
			e.log.Infow("Slew complete", logger.FieldJob, j.Name)
			j.SetStage(job.StageSlewComplete)
		}
		return e.next(ctx, now)
	case st == equipment.StateAlert:
		e.log.Errorw("Slew failed", logger.FieldJob, j.Name)
		j.SetState(job.StateError)
		return e.findNextJob(ctx, now)
	}
	return Running
}

func (e *Executor) pollFocus(ctx context.Context, now time.Time) Outcome {
	j := e.job
	st, err := e.svc.Focuser.Status(ctx)
	if err != nil {
		return e.statusFailed(ctx, now, "focuser.Status", err)
	}
	e.statusFail.Reset()

	switch st {
	case equipment.FocusComplete:
		e.log.Infow("Focusing complete", logger.FieldJob, j.Name)
		e.autofocused = true
		j.SetStage(job.StageFocusComplete)
		return e.next(ctx, now)
	case equipment.FocusFailed, equipment.FocusAborted:
		e.log.Warnw("Focusing failed", logger.FieldJob, j.Name, logger.FieldStatus, st.String())
		if e.focusFail.Next() {
			e.log.Infow("Restarting focusing", logger.FieldJob, j.Name, logger.FieldAttempt, e.focusFail.Count())
			if err := e.svc.Focuser.ResetFrame(ctx); err != nil {
				e.log.Warnw("Failed to reset focus frame", logger.FieldError, err)
			}
			return e.attempt(ctx, now, "focus", e.startFocusing)
		}
		e.log.Errorw("Focusing failed too often", logger.FieldJob, j.Name, logger.FieldError, e.focusFail.Err())
		j.SetState(job.StateError)
		return e.findNextJob(ctx, now)
	}
	return Running
}

func (e *Executor) pollAlign(ctx context.Context, now time.Time) Outcome {
	j := e.job
	st, err := e.svc.Aligner.Status(ctx)
	if err != nil {
		return e.statusFailed(ctx, now, "aligner.Status", err)
	}
	e.statusFail.Reset()

	switch st {
	case equipment.AlignComplete:
		e.log.Infow("Alignment complete", logger.FieldJob, j.Name)
		j.SetStage(job.StageAlignComplete)
		return e.next(ctx, now)
	case equipment.AlignFailed, equipment.AlignAborted:
		e.log.Warnw("Alignment failed", logger.FieldJob, j.Name, logger.FieldStatus, st.String())
		if e.alignFail.Next() {
			if e.opts.ResetMountModelOnAlignFail {
				if err := e.svc.Mount.ResetModel(ctx); err != nil {
					e.log.Warnw("Failed to reset mount model", logger.FieldError, err)
				}
			}
			e.log.Infow("Restarting alignment", logger.FieldJob, j.Name, logger.FieldAttempt, e.alignFail.Count())
			return e.attempt(ctx, now, "align", func(ctx context.Context) (bool, error) {
				return false, e.startAstrometry(ctx)
			})
		}
		e.log.Errorw("Alignment failed too often", logger.FieldJob, j.Name, logger.FieldError, e.alignFail.Err())
		j.SetState(job.StateError)
		return e.findNextJob(ctx, now)
	}
	return Running
}

func (e *Executor) pollGuide(ctx context.Context, now time.Time) Outcome {
	j := e.job
	st, err := e.svc.Guider.Status(ctx)
	if err != nil {
		return e.statusFailed(ctx, now, "guider.Status", err)
	}
	e.statusFail.Reset()

	switch st {
	case equipment.GuideGuiding:
		e.log.Infow("Guiding in progress", logger.FieldJob, j.Name)
		j.SetStage(job.StageGuidingComplete)
		return e.next(ctx, now)
	case equipment.GuideCalibrationError, equipment.GuideAborted:
		e.log.Warnw("Guiding failed", logger.FieldJob, j.Name, logger.FieldStatus, st.String())
		if e.guideFail.Next() {
			e.log.Infow("Restarting guiding", logger.FieldJob, j.Name, logger.FieldAttempt, e.guideFail.Count())
			return e.attempt(ctx, now, "guide", e.restartGuiding)
		}
		e.log.Errorw("Guiding failed too often", logger.FieldJob, j.Name, logger.FieldError, e.guideFail.Err())
		j.SetState(job.StateError)
		return e.findNextJob(ctx, now)
	}
	return Running
}

func (e *Executor) pollCapture(ctx context.Context, now time.Time) Outcome {
	j := e.job
	st, err := e.svc.Capture.SequenceQueueStatus(ctx)
	if err != nil {
		return e.statusFailed(ctx, now, "capture.SequenceQueueStatus", err)
	}
	e.statusFail.Reset()

	switch st {
	case equipment.QueueAborted, equipment.QueueError:
		e.log.Warnw("Capture failed", logger.FieldJob, j.Name, logger.FieldStatus, string(st))
		if j.Steps.Has(job.UseGuide) && e.captureFail.Next() {
			gs, err := e.svc.Guider.Status(ctx)
			if err == nil && (gs == equipment.GuideAborted ||
				gs == equipment.GuideCalibrationError ||
				gs == equipment.GuideDitheringError) {
				e.log.Infow("Capture failed while guiding was lost, restarting guiding",
					logger.FieldJob, j.Name,
					logger.FieldAttempt, e.captureFail.Count(),
					logger.FieldStatus, gs.String())
				return e.attempt(ctx, now, "guide", e.restartGuiding)
			}
		}
		j.SetState(job.StateError)
		return e.findNextJob(ctx, now)

	case equipment.QueueComplete:
		e.log.Infow("Capture finished", logger.FieldJob, j.Name, "batch", e.batch+1)
		if err := e.svc.Capture.ClearSequenceQueue(ctx); err != nil {
			e.log.Warnw("Failed to clear sequence queue", logger.FieldError, err)
		}
		return e.findNextJob(ctx, now)
	}
	return Running
}

// findNextJob applies the completion condition once the job has left its
// stage: it either releases the job or starts another capture batch.
func (e *Executor) findNextJob(ctx context.Context, now time.Time) Outcome {
	j := e.job
	e.retry = nil

	switch j.State() {
	case job.StateError:
		e.log.Errorw("Job terminated due to errors", logger.FieldJob, j.Name)
		e.batch = 0
		e.stopGuiding(ctx)
		e.job = nil
		return Finished
	case job.StateAborted:
		e.batch = 0
		e.job = nil
		return Finished
	}

	switch j.CompletionCondition {
	case job.FinishSequence:
		j.SetState(job.StateComplete)
		e.batch = 0
		e.stopGuiding(ctx)
		e.job = nil
		return Finished

	case job.FinishRepeat:
		j.RepeatsRemaining--
		if j.RepeatsRemaining <= 0 {
			j.RepeatsRemaining = 0
			e.log.Infow("Job complete", logger.FieldJob, j.Name)
			j.SetState(job.StateComplete)
			e.stopCurrentAction(ctx)
			e.stopGuiding(ctx)
			e.job = nil
			return Finished
		}
		e.log.Infow("Repeating job", logger.FieldJob, j.Name, logger.FieldRepeats, j.RepeatsRemaining)
		return e.restartCapture(ctx, now)

	case job.FinishLoop:
		e.batch++
		return e.restartCapture(ctx, now)

	case job.FinishAt:
		if !now.Before(j.CompletionTime) {
			e.log.Infow("Job reached its completion time",
				logger.FieldJob, j.Name,
				"batches", e.batch+1)
			j.SetState(job.StateComplete)
			e.stopCurrentAction(ctx)
			e.stopGuiding(ctx)
			e.batch = 0
			e.job = nil
			return Finished
		}
		e.log.Infow("Job completed a batch and restarts", logger.FieldJob, j.Name)
		e.batch++
		return e.restartCapture(ctx, now)
	}
	return Finished
}

func (e *Executor) restartCapture(ctx context.Context, now time.Time) Outcome {
	j := e.job
	j.SetState(job.StateBusy)
	j.SetStage(job.StageCapturing)
	return e.attempt(ctx, now, "capture", func(ctx context.Context) (bool, error) {
		return false, e.startCapture(ctx)
	})
}

func (e *Executor) startSlew(ctx context.Context) error {
	j := e.job
	if e.opts.ResetMountModelBeforeJob {
		if err := e.svc.Mount.ResetModel(ctx); err != nil {
			return errors.Wrap(err, "reset mount model")
		}
	}
	if err := e.svc.Mount.Slew(ctx, j.RA, j.Dec); err != nil {
		return errors.Wrapf(err, "slew to %s", j.Name)
	}
	e.log.Infow("Slewing", logger.FieldJob, j.Name, "ra", j.RA, "dec", j.Dec)
	j.SetStage(job.StageSlewing)
	return nil
}

// startFocusing starts autofocus. It reports true when the stage advanced
// without starting anything: after alignment only the focus reference is
// cleared, and a focuser without autofocus drops the focus step.
func (e *Executor) startFocusing(ctx context.Context) (bool, error) {
	j := e.job
	f := e.svc.Focuser

	if j.Stage() == job.StageReslewingComplete || j.Stage() == job.StagePostAlignFocusing {
		if err := f.ClearAutoFocusHFR(ctx); err != nil {
			return false, errors.Wrap(err, "clear autofocus HFR")
		}
		if err := f.ResetFrame(ctx); err != nil {
			return false, errors.Wrap(err, "reset focus frame")
		}
		j.SetStage(job.StagePostAlignFocusingComplete)
		return true, nil
	}

	can, err := f.CanAutoFocus(ctx)
	if err != nil {
		return false, errors.Wrap(err, "query autofocus")
	}
	if !can {
		e.log.Warnw("Focuser cannot autofocus, skipping focus step", logger.FieldJob, j.Name)
		j.Steps &^= job.UseFocus
		j.SetStage(job.StageFocusComplete)
		return true, nil
	}

	if err := f.ClearAutoFocusHFR(ctx); err != nil {
		return false, errors.Wrap(err, "clear autofocus HFR")
	}
	if err := f.ResetFrame(ctx); err != nil {
		return false, errors.Wrap(err, "reset focus frame")
	}
	if !e.opts.FocusUseFullField {
		if err := f.SetAutoStarEnabled(ctx, true); err != nil {
			return false, errors.Wrap(err, "enable auto star")
		}
	}
	if err := f.Start(ctx); err != nil {
		return false, errors.Wrap(err, "start autofocus")
	}
	e.log.Infow("Focusing", logger.FieldJob, j.Name)
	j.SetStage(job.StageFocusing)
	return false, nil
}

func (e *Executor) startAstrometry(ctx context.Context) error {
	j := e.job
	a := e.svc.Aligner
	if err := a.SetSolverAction(ctx, equipment.SolverGotoSlew); err != nil {
		return errors.Wrap(err, "set solver action")
	}
	if err := a.SetUpdateCoords(ctx, true); err != nil {
		return errors.Wrap(err, "set update coords")
	}
	if j.FITSFile != "" {
		if err := a.LoadAndSlew(ctx, j.FITSFile); err != nil {
			return errors.Wrapf(err, "load and slew %s", j.FITSFile)
		}
	} else if err := a.CaptureAndSolve(ctx); err != nil {
		return errors.Wrap(err, "capture and solve")
	}
	e.log.Infow("Aligning", logger.FieldJob, j.Name, logger.FieldFile, j.FITSFile)
	j.SetStage(job.StageAligning)
	return nil
}

func (e *Executor) startGuiding(ctx context.Context, reset bool) error {
	j := e.job
	g := e.svc.Guider
	if reset {
		if err := g.ClearCalibration(ctx); err != nil {
			return errors.Wrap(err, "clear guide calibration")
		}
	}
	if err := g.StartAutoCalibrateGuide(ctx); err != nil {
		return errors.Wrap(err, "start guiding")
	}
	e.log.Infow("Guiding", logger.FieldJob, j.Name, "recalibrate", reset)
	j.SetStage(job.StageGuiding)
	return nil
}

func (e *Executor) restartGuiding(ctx context.Context) (bool, error) {
	return false, e.startGuiding(ctx, true)
}

func (e *Executor) startCapture(ctx context.Context) error {
	j := e.job
	c := e.svc.Capture

	if err := c.ClearSequenceQueue(ctx); err != nil {
		return errors.Wrap(err, "clear sequence queue")
	}
	if err := c.SetTargetName(ctx, j.TargetName()); err != nil {
		return errors.Wrap(err, "set target name")
	}
	if err := c.LoadSequenceQueue(ctx, j.Sequence); err != nil {
		return errors.Wrapf(err, "load sequence %s", j.Sequence)
	}

	sigs := make([]string, 0, len(j.CapturedFrames))
	for sig := range j.CapturedFrames {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	for _, sig := range sigs {
		if err := c.SetCapturedFramesMap(ctx, sig, j.CapturedFrames[sig]); err != nil {
			return errors.Wrapf(err, "set captured frames for %s", sig)
		}
	}

	if j.CompletionCondition != job.FinishSequence {
		if err := c.IgnoreSequenceHistory(ctx); err != nil {
			return errors.Wrap(err, "ignore sequence history")
		}
	}
	if err := c.Start(ctx); err != nil {
		return errors.Wrap(err, "start capture")
	}

	j.SetStage(job.StageCapturing)
	if e.batch > 0 {
		e.log.Infow("Capturing", logger.FieldJob, j.Name, "batch", e.batch+1)
	} else {
		e.log.Infow("Capturing", logger.FieldJob, j.Name)
	}
	return nil
}

// stopGuiding aborts guiding when it is running for the job.
func (e *Executor) stopGuiding(ctx context.Context) {
	j := e.job
	if j == nil || !j.Steps.Has(job.UseGuide) {
		return
	}
	if j.Stage() != job.StageGuidingComplete && j.Stage() != job.StageCapturing {
		return
	}
	e.log.Infow("Stopping guiding", logger.FieldJob, j.Name)
	if err := e.svc.Guider.Abort(ctx); err != nil {
		e.log.Warnw("Failed to stop guiding", logger.FieldError, err)
	}
	e.guideFail.Reset()
}

// stopCurrentAction aborts the command of the current stage.
func (e *Executor) stopCurrentAction(ctx context.Context) {
	j := e.job
	if j == nil {
		return
	}
	var err error
	switch j.Stage() {
	case job.StageSlewing, job.StageReslewing:
		err = e.svc.Mount.Abort(ctx)
	case job.StageFocusing:
		err = e.svc.Focuser.Abort(ctx)
	case job.StageAligning:
		err = e.svc.Aligner.Abort(ctx)
	case job.StageGuiding:
		e.stopGuiding(ctx)
	case job.StageCapturing:
		err = e.svc.Capture.Abort(ctx)
	}
	if err != nil {
		e.log.Warnw("Failed to stop current action",
			logger.FieldJob, j.Name,
			logger.FieldStage, j.Stage().String(),
			logger.FieldError, err)
	}
}
