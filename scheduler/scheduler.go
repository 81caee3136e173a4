// Package scheduler ties the evaluator, the equipment orchestrator and the
// job executor to the control loop.
//
// Every piece of scheduling state is owned by the loop goroutine. Public
// methods hand their work to the loop with Do and wait for it, so they are
// safe from any goroutine; handlers and observers run on the loop and must
// not call back into the public API.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/pulse/async"
	"github.com/teranos/nightshift/pulse/tick"
	"github.com/teranos/nightshift/scheduler/estimate"
	"github.com/teranos/nightshift/scheduler/evaluate"
	"github.com/teranos/nightshift/scheduler/execute"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/orchestrate"
	"github.com/teranos/nightshift/scheduler/schedfile"
	"github.com/teranos/nightshift/sky"
)

// RunState is whether a scheduling run is in progress.
type RunState int

const (
	Idle RunState = iota
	Running
	Paused
)

var runStateNames = [...]string{"idle", "running", "paused"}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return "unknown"
	}
	return runStateNames[s]
}

// Run outcomes reported to listeners.
const (
	OutcomeComplete = "complete" // nothing left to run
	OutcomeStopped  = "stopped"  // stopped by the operator
	OutcomeFailed   = "failed"   // a procedure or the equipment failed
)

// RunListener is told when runs start and stop. Calls happen on the loop
// goroutine.
type RunListener interface {
	RunStarted(id, schedule string, at time.Time)
	RunStopped(id string, at time.Time, outcome string)
}

// Scheduler runs a queue of jobs against the equipment.
type Scheduler struct {
	svc  equipment.Services
	sky  sky.Context
	opts Options
	log  *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	loop   *tick.Loop

	queue     *job.Queue
	est       *estimate.Estimator
	eval      *evaluate.Evaluator
	orch      *orchestrate.Orchestrator
	exec      *execute.Executor
	observers job.Observers
	listeners []RunListener

	mu    sync.Mutex
	state RunState
	runID string
	done  chan struct{}
	err   error

	// owned by the loop goroutine
	path           string
	profile        string
	pending        *schedfile.Schedule
	current        *job.Job
	preemptive     bool
	weather        equipment.PropertyState
	weatherUnknown int
	weatherCancel  context.CancelFunc
	manual         *manualRun
}

// New creates a scheduler with an empty queue and starts its control loop.
// Close stops the loop.
func New(ctx context.Context, svc equipment.Services, sc sky.Context, opts Options, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		svc:    svc,
		sky:    sc,
		opts:   opts,
		log:    logger.AddPulseSymbol(log),
		ctx:    loopCtx,
		cancel: cancel,
		done:   closedChan(),
	}
	s.est = estimate.New(opts.Estimate, log)
	s.eval = evaluate.New(sc, opts.Evaluate, s.est, log)
	s.orch = orchestrate.New(svc, sc.Clock, opts.Orchestrate, log)
	s.orch.OnWeatherReady(s.startWeather)
	s.exec = execute.New(svc, sc.Site, opts.Execute, log)
	s.queue = job.NewQueue(s.observers)

	s.loop = tick.NewWithContext(loopCtx, opts.Tick, tick.Handlers{
		Scheduler: s.onSchedulerTick,
		Job:       s.onJobTick,
		Wake:      s.onWake,
	}, log)
	s.loop.Start()
	return s
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Close stops the control loop. A run still in progress is stopped first.
func (s *Scheduler) Close() {
	_ = s.loop.Do(func() { s.stop(s.ctx, OutcomeStopped, nil) })
	s.loop.Stop()
	s.cancel()
}

// do runs fn on the loop and returns its error.
func (s *Scheduler) do(fn func() error) error {
	var err error
	if derr := s.loop.Do(func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// Estimator exposes the estimator so callers can change how sequences and
// frames on disk are read.
func (s *Scheduler) Estimator() *estimate.Estimator { return s.est }

// AddObserver registers an observer of job changes.
func (s *Scheduler) AddObserver(o job.Observer) error {
	return s.do(func() error {
		s.observers = append(s.observers, o)
		s.queue.SetObserver(s.observers)
		return nil
	})
}

// AddRunListener registers a listener for run starts and stops.
func (s *Scheduler) AddRunListener(l RunListener) error {
	return s.do(func() error {
		s.listeners = append(s.listeners, l)
		return nil
	})
}

// State returns the run state.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunID returns the id of the current or last run.
func (s *Scheduler) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *Scheduler) setState(st RunState) {
	s.mu.Lock()
	from := s.state
	s.state = st
	s.mu.Unlock()
	if from != st {
		s.log.Infow("Scheduler state", "from", from.String(), "to", st.String())
	}
}

// LoopStats returns a snapshot of control loop activity.
func (s *Scheduler) LoopStats() tick.Stats { return s.loop.Stats() }

// Load replaces the queue and the procedure with those of sch. It is
// refused while a run is in progress.
func (s *Scheduler) Load(sch *schedfile.Schedule) error {
	return s.do(func() error {
		if s.state != Idle || s.manual != nil {
			return errors.Wrap(errors.ErrConflict, "cannot load a schedule while the scheduler is running")
		}
		s.load(sch)
		return nil
	})
}

func (s *Scheduler) load(sch *schedfile.Schedule) {
	q := job.NewQueue(s.observers)
	for _, j := range sch.Jobs {
		if err := q.Add(j); err != nil {
			s.log.Warnw("Skipping duplicate job", logger.FieldJob, j.Name, logger.FieldError, err)
		}
	}
	s.queue = q
	s.path = sch.Path
	s.profile = sch.Profile
	s.orch.SetProcedure(sch.Procedure)
	s.applyOptions()
	s.log.Infow("Schedule loaded",
		logger.FieldFile, sch.Path,
		logger.FieldCount, q.Len(),
		"profile", s.orchestrateOptions().Profile)
}

// ScheduleChanged loads sch when idle and otherwise keeps it until the
// current run stops. It is meant for a file watcher callback.
func (s *Scheduler) ScheduleChanged(sch *schedfile.Schedule) {
	err := s.do(func() error {
		if s.state != Idle || s.manual != nil {
			s.log.Infow("Schedule changed during a run, reloading when it stops", logger.FieldFile, sch.Path)
			s.pending = sch
			return nil
		}
		s.load(sch)
		return nil
	})
	if err != nil {
		s.log.Warnw("Schedule reload dropped", logger.FieldError, err)
	}
}

// SetOptions replaces the component options. A running scheduler uses them
// from the next evaluation on.
func (s *Scheduler) SetOptions(opts Options) error {
	return s.do(func() error {
		s.opts = opts
		s.applyOptions()
		return nil
	})
}

// orchestrateOptions returns the orchestrator options with the schedule's
// equipment profile, which wins over the configured one.
func (s *Scheduler) orchestrateOptions() orchestrate.Options {
	o := s.opts.Orchestrate
	if s.profile != "" {
		o.Profile = s.profile
	}
	return o
}

func (s *Scheduler) applyOptions() {
	s.eval.SetOptions(s.opts.Evaluate)
	s.orch.SetOptions(s.orchestrateOptions())
	s.exec.SetOptions(s.opts.Execute)
	s.est.Options = s.opts.Estimate
}

// Jobs returns copies of the queued jobs.
func (s *Scheduler) Jobs() []*job.Job {
	var out []*job.Job
	_ = s.loop.Do(func() {
		for _, j := range s.queue.Jobs() {
			out = append(out, j.Clone())
		}
	})
	return out
}

// ResetAll returns every job to Idle. It is refused while running.
func (s *Scheduler) ResetAll() error {
	return s.do(func() error {
		if s.state != Idle {
			return errors.Wrap(errors.ErrConflict, "cannot reset jobs while the scheduler is running")
		}
		s.queue.ResetAll()
		return nil
	})
}

// Start begins a run: every job is reset and the scheduler driver armed.
func (s *Scheduler) Start() error {
	return s.do(func() error {
		switch {
		case s.manual != nil:
			return errors.Wrap(errors.ErrConflict, "a manual procedure is running")
		case s.state == Paused:
			s.resume()
			return nil
		case s.state == Running:
			return errors.Wrap(errors.ErrConflict, "scheduler is already running")
		case s.queue.Len() == 0:
			return errors.WithHint(errors.Wrap(errors.ErrInvalidRequest, "no jobs to run"),
				"load a schedule with at least one job")
		}

		s.queue.ResetAll()
		s.exec.Reset()
		s.current = nil
		s.preemptive = false
		s.weather = equipment.StateIdle
		s.weatherUnknown = 0

		id := uuid.New().String()
		s.mu.Lock()
		s.runID = id
		s.done = make(chan struct{})
		s.err = nil
		s.mu.Unlock()
		s.setState(Running)

		now := s.sky.Now()
		s.log.Infow("Scheduler started", logger.FieldRunID, id, logger.FieldFile, s.path, logger.FieldCount, s.queue.Len())
		for _, l := range s.listeners {
			l.RunStarted(id, s.path, now)
		}
		s.loop.Arm(tick.DriverScheduler)
		return nil
	})
}

// Stop ends the run: the running job is interrupted, unfinished jobs are
// marked Aborted and the orchestration machines are reset.
func (s *Scheduler) Stop() error {
	return s.do(func() error {
		s.stop(s.ctx, OutcomeStopped, nil)
		return nil
	})
}

// Pause holds the run at the next tick.
func (s *Scheduler) Pause() error {
	return s.do(func() error {
		if s.state != Running {
			return errors.Wrap(errors.ErrConflict, "scheduler is not running")
		}
		s.setState(Paused)
		s.log.Infow("Scheduler pause planned")
		return nil
	})
}

// Resume continues a paused run.
func (s *Scheduler) Resume() error {
	return s.do(func() error {
		if s.state != Paused {
			return errors.Wrap(errors.ErrConflict, "scheduler is not paused")
		}
		s.resume()
		return nil
	})
}

func (s *Scheduler) resume() {
	s.setState(Running)
	if s.exec.Current() != nil {
		s.loop.Arm(tick.DriverJob)
	} else if !s.loop.Sleeping() {
		s.loop.Arm(tick.DriverScheduler)
	}
	s.log.Infow("Scheduler resumed")
}

// Wake cuts a sleep short.
func (s *Scheduler) Wake() error {
	return s.do(func() error {
		if !s.loop.Sleeping() {
			return nil
		}
		s.loop.CancelSleep()
		s.onWake(s.ctx, time.Time{})
		return nil
	})
}

// Wait blocks until the current run stops and returns the error that
// stopped it, if any.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// EvaluateOnly resets the queue and runs one evaluation pass without
// touching any equipment.
func (s *Scheduler) EvaluateOnly() (evaluate.Decision, error) {
	var d evaluate.Decision
	err := s.do(func() error {
		if s.state != Idle {
			return errors.Wrap(errors.ErrConflict, "cannot evaluate while the scheduler is running")
		}
		s.queue.ResetAll()
		d = s.eval.Evaluate(s.queue.Jobs(), s.conditions(true))
		return nil
	})
	return d, err
}

func (s *Scheduler) conditions(evaluateOnly bool) evaluate.Conditions {
	plan := s.orch.Plan()
	return evaluate.Conditions{
		StartupComplete: s.orch.Startup() == orchestrate.StartupComplete,
		ParkWaitIdle:    s.orch.ParkWait() == orchestrate.ParkWaitIdle,
		ParkWaitParked:  s.orch.ParkWait() == orchestrate.ParkWaitParked,
		ParkMount:       plan.Enabled(orchestrate.DeviceMount, true),
		WeatherEnabled:  plan.Capabilities.Weather,
		Weather:         s.weather,
		DevicesReady:    s.orch.Devices() == orchestrate.DevicesReady,
		EvaluateOnly:    evaluateOnly,
	}
}

// onSchedulerTick moves the run on while no job executes.
func (s *Scheduler) onSchedulerTick(ctx context.Context, _ time.Time) {
	if s.manual != nil {
		s.stepProcedure(ctx)
		return
	}
	switch s.state {
	case Idle:
		s.loop.Arm(tick.DriverNone)
		return
	case Paused:
		s.loop.Arm(tick.DriverNone)
		s.log.Infow("Scheduler paused")
		return
	}
	s.checkStatus(ctx)
}

func (s *Scheduler) checkStatus(ctx context.Context) {
	if s.current == nil {
		switch sd := s.orch.Shutdown(); {
		case sd == orchestrate.ShutdownComplete:
			s.shutdownComplete(ctx)
			return
		case sd == orchestrate.ShutdownError:
			s.stop(ctx, OutcomeFailed, s.orch.Err())
			return
		case sd > orchestrate.ShutdownIdle:
			s.checkShutdown(ctx)
			return
		}

		if done, err := s.orch.CheckParkWait(ctx); err != nil {
			s.stop(ctx, OutcomeFailed, err)
			return
		} else if !done {
			return
		}

		s.evaluate(ctx)
		if s.current == nil {
			return
		}
	}
	j := s.current

	if s.orch.Startup() == orchestrate.StartupError {
		s.stop(ctx, OutcomeFailed, s.orch.Err())
		return
	}
	if st := s.orch.Startup(); st == orchestrate.StartupIdle || st == orchestrate.StartupScript {
		if !s.step(ctx, func() (bool, error) { return s.orch.CheckStartup(ctx, j.LightFramesRequired) }) {
			return
		}
		if s.orch.Startup() == orchestrate.StartupScript {
			return
		}
	}
	if !s.step(ctx, func() (bool, error) { return s.orch.CheckManager(ctx) }) {
		return
	}
	if !s.step(ctx, func() (bool, error) { return s.orch.CheckDevices(ctx) }) {
		return
	}
	if !s.step(ctx, func() (bool, error) { return s.orch.CheckParkWait(ctx) }) {
		return
	}
	if !s.step(ctx, func() (bool, error) { return s.orch.CheckStartup(ctx, j.LightFramesRequired) }) {
		return
	}

	plan := s.orch.Plan()
	s.exec.Begin(ctx, j, s.eval.PreDawn(s.sky.Now()), plan.Enabled(orchestrate.DeviceDome, true))
	s.loop.Arm(tick.DriverJob)
}

// step runs one orchestration check. A failure stops the run.
func (s *Scheduler) step(ctx context.Context, check func() (bool, error)) bool {
	done, err := check()
	if err != nil {
		s.stop(ctx, OutcomeFailed, err)
		return false
	}
	return done
}

func (s *Scheduler) evaluate(ctx context.Context) {
	d := s.eval.Evaluate(s.queue.Jobs(), s.conditions(false))
	switch d.Kind {
	case evaluate.Run:
		s.current = d.Job
	case evaluate.Unpark:
		s.orch.RequestUnpark()
	case evaluate.Park:
		s.orch.RequestPark()
	case evaluate.Sleep:
		s.loop.Arm(tick.DriverNone)
		s.loop.Sleep(d.Wake)
	case evaluate.PreemptiveShutdown:
		s.preemptive = true
		s.loop.Sleep(d.Wake)
		s.checkShutdown(ctx)
	case evaluate.Shutdown:
		s.checkShutdown(ctx)
	case evaluate.Stop:
		if d.Counts.Invalid > 0 && d.Counts.Invalid == s.queue.Len() {
			s.stop(ctx, OutcomeFailed, errors.WithHint(
				errors.Wrap(errors.ErrInvalidRequest, "no valid jobs"),
				"check the job constraints and sequence files"))
			return
		}
		s.stop(ctx, OutcomeComplete, nil)
	}
}

func (s *Scheduler) checkShutdown(ctx context.Context) {
	if _, err := s.orch.CheckShutdown(ctx); err != nil {
		s.stop(ctx, OutcomeFailed, err)
	}
}

// shutdownComplete winds the equipment down after a shutdown. A preemptive
// shutdown then waits for the sleep timer instead of ending the run.
func (s *Scheduler) shutdownComplete(ctx context.Context) {
	done, err := s.orch.WindDown(ctx)
	if err != nil {
		s.stop(ctx, OutcomeFailed, err)
		return
	}
	if !done {
		return
	}
	if s.preemptive {
		s.log.Infow("Observatory is shut down until the next job is due",
			"wake_at", s.loop.Stats().SleepUntil)
		s.stopWeather()
		s.orch.Reset(true)
		s.loop.Arm(tick.DriverNone)
		return
	}
	s.stop(ctx, OutcomeComplete, nil)
}

// onJobTick advances the running job.
func (s *Scheduler) onJobTick(ctx context.Context, _ time.Time) {
	switch s.state {
	case Idle:
		s.loop.Arm(tick.DriverNone)
		return
	case Paused:
		s.loop.Arm(tick.DriverNone)
		s.log.Infow("Scheduler paused")
		return
	}

	switch s.exec.Tick(ctx, s.sky.Now()) {
	case execute.Finished:
		s.current = nil
		s.loop.Arm(tick.DriverScheduler)
	case execute.Shutdown:
		s.current = nil
		s.loop.Arm(tick.DriverScheduler)
		s.checkShutdown(ctx)
	}
}

// onWake ends a sleep.
func (s *Scheduler) onWake(_ context.Context, _ time.Time) {
	if s.state == Idle {
		return
	}
	if s.preemptive {
		s.preemptive = false
		s.log.Infow("Scheduler is awake")
	} else {
		s.log.Infow("Scheduler is awake, jobs start when ready")
	}
	if s.state == Running {
		s.loop.Arm(tick.DriverScheduler)
	}
}

// stop ends the run. It never fails; every step is best effort.
func (s *Scheduler) stop(ctx context.Context, outcome string, cause error) {
	if s.state == Idle {
		return
	}

	// An explicit stop ends a preemptive sleep for good.
	if s.preemptive && outcome == OutcomeStopped {
		s.log.Infow("Run stopped during a preemptive shutdown")
		s.preemptive = false
	}
	if !s.preemptive {
		if s.exec.Current() != nil {
			s.exec.Interrupt(ctx)
		}
		for _, j := range s.queue.Jobs() {
			if j.State() <= job.StateBusy {
				s.log.Infow("Job was not processed, marking aborted", logger.FieldJob, j.Name, logger.FieldState, j.State().String())
				j.SetState(job.StateAborted)
				j.SetStage(job.StageIdle)
			}
		}
	}

	s.exec.Reset()
	s.current = nil
	s.loop.Arm(tick.DriverNone)
	s.loop.CancelSleep()
	s.stopWeather()
	s.orch.Reset(s.preemptive)
	s.preemptive = false
	s.setState(Idle)

	s.mu.Lock()
	id := s.runID
	s.err = cause
	done := s.done
	s.mu.Unlock()

	if cause != nil {
		s.log.Errorw("Scheduler stopped",
			logger.FieldRunID, id,
			"outcome", outcome,
			logger.FieldError, cause,
			logger.FieldErrorKind, async.Classify(cause).String())
	} else {
		s.log.Infow("Scheduler stopped", logger.FieldRunID, id, "outcome", outcome)
	}
	now := s.sky.Now()
	for _, l := range s.listeners {
		l.RunStopped(id, now, outcome)
	}
	close(done)

	if s.pending != nil {
		sch := s.pending
		s.pending = nil
		s.load(sch)
	}
}
