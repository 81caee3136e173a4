// Package orchestrate drives the equipment lifecycle around job execution:
// starting the equipment manager, connecting devices, the startup and
// shutdown procedures and parking the mount while the scheduler sleeps.
//
// Every machine advances by at most one step per call. A step either issues
// one remote request or polls the request it issued earlier; nothing here
// blocks on equipment. Transitions are looked up in pure tables (table.go);
// this file only talks to the devices and feeds the tables events.
//
// Check methods return (done, err). A non-nil error means the machine hit
// its Error state and the run must stop.
package orchestrate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/pulse/async"
	"github.com/teranos/nightshift/sym"
)

// DefaultProfile is the manager profile that needs no explicit selection.
const DefaultProfile = "Default"

// Options tune the orchestrator.
type Options struct {
	Profile                         string
	StopManagerAfterShutdown        bool
	ShutdownScriptTerminatesDevices bool

	MountTimeout   time.Duration
	DomeTimeout    time.Duration
	CapTimeout     time.Duration
	ManagerTimeout time.Duration
	ConnectTimeout time.Duration
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() Options {
	return Options{
		Profile:                  DefaultProfile,
		StopManagerAfterShutdown: true,
		MountTimeout:             60 * time.Second,
		DomeTimeout:              120 * time.Second,
		CapTimeout:               60 * time.Second,
		ManagerTimeout:           60 * time.Second,
		ConnectTimeout:           30 * time.Second,
	}
}

// parkable is the part of mount, dome and dust cap the park steps use.
type parkable interface {
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	ParkingStatus(ctx context.Context) (equipment.ParkingStatus, error)
}

// parkOp is the outstanding park or unpark request of one device.
type parkOp struct {
	poll  *async.Poll
	retry *async.RetryCounter
}

// Orchestrator owns the equipment machines. It is not safe for concurrent
// use; the control loop calls it from one goroutine.
type Orchestrator struct {
	svc   equipment.Services
	clock async.Clock
	opts  Options

	log      *zap.SugaredLogger
	openLog  *zap.SugaredLogger
	closeLog *zap.SugaredLogger
	devLog   map[Device]*zap.SugaredLogger

	procedure Procedure
	caps      Capabilities

	startup  StartupState
	shutdown ShutdownState
	parkWait ParkWaitState
	manager  ManagerState
	devices  DevicesState

	ops          map[Device]*parkOp
	managerPoll  *async.Poll
	connectPoll  *async.Poll
	connectRetry *async.RetryCounter
	script       *Script
	err          error

	onWeather func(period time.Duration)
}

// New returns an orchestrator with every machine idle.
func New(svc equipment.Services, clock async.Clock, opts Options, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		svc:      svc,
		clock:    clock,
		opts:     opts,
		log:      logger.AddPulseSymbol(log),
		openLog:  logger.AddPulseOpenSymbol(log),
		closeLog: logger.AddPulseCloseSymbol(log),
		devLog: map[Device]*zap.SugaredLogger{
			DeviceMount: logger.AddSymbol(log, sym.Mount),
			DeviceDome:  logger.AddSymbol(log, sym.Dome),
			DeviceCap:   logger.AddPulseSymbol(log),
		},
		procedure:    DefaultProcedure(),
		caps:         DefaultCapabilities(),
		ops:          make(map[Device]*parkOp),
		connectRetry: async.NewRetryCounter("manager.connect"),
	}
}

// SetProcedure replaces the startup and shutdown procedure.
func (o *Orchestrator) SetProcedure(p Procedure) { o.procedure = p }

// Procedure returns the configured procedure.
func (o *Orchestrator) Procedure() Procedure { return o.procedure }

// SetOptions replaces the options. Outstanding polls keep their timeouts.
func (o *Orchestrator) SetOptions(opts Options) { o.opts = opts }

// Capabilities returns what the devices are known to support.
func (o *Orchestrator) Capabilities() Capabilities { return o.caps }

// Plan returns the procedure filtered by the capabilities.
func (o *Orchestrator) Plan() Plan {
	return Plan{Procedure: o.procedure, Capabilities: o.caps}
}

// OnWeatherReady registers fn to be called when the property check finds a
// weather station reporting every period.
func (o *Orchestrator) OnWeatherReady(fn func(period time.Duration)) { o.onWeather = fn }

func (o *Orchestrator) Startup() StartupState   { return o.startup }
func (o *Orchestrator) Shutdown() ShutdownState { return o.shutdown }
func (o *Orchestrator) ParkWait() ParkWaitState { return o.parkWait }
func (o *Orchestrator) Manager() ManagerState   { return o.manager }
func (o *Orchestrator) Devices() DevicesState   { return o.devices }

// Err returns the error that put a machine into its Error state.
func (o *Orchestrator) Err() error { return o.err }

func (o *Orchestrator) setStartup(s StartupState) {
	if s != o.startup {
		o.openLog.Infow("Startup state", "from", o.startup.String(), "to", s.String())
		o.startup = s
	}
}

func (o *Orchestrator) setShutdown(s ShutdownState) {
	if s != o.shutdown {
		o.closeLog.Infow("Shutdown state", "from", o.shutdown.String(), "to", s.String())
		o.shutdown = s
	}
}

func (o *Orchestrator) setParkWait(s ParkWaitState) {
	if s != o.parkWait {
		o.log.Infow("Park wait state", "from", o.parkWait.String(), "to", s.String())
		o.parkWait = s
	}
}

func (o *Orchestrator) setManager(s ManagerState) {
	if s != o.manager {
		o.log.Debugw("Manager state", "from", o.manager.String(), "to", s.String())
		o.manager = s
	}
}

func (o *Orchestrator) setDevices(s DevicesState) {
	if s != o.devices {
		o.log.Debugw("Devices state", "from", o.devices.String(), "to", s.String())
		o.devices = s
	}
}

func (o *Orchestrator) fail(machine string, err error) error {
	if err == nil {
		err = errors.Newf("%s failed", machine)
	}
	ec := async.ClassifyError(machine, err)
	o.err = errors.Wrap(err, machine)
	o.log.Errorw("Procedure failed",
		logger.FieldStage, ec.Stage,
		logger.FieldError, o.err,
		logger.FieldErrorKind, ec.Kind.String())
	return o.err
}

// CheckManager brings the equipment manager up. It reports true once the
// manager is ready, or once a requested stop has finished.
func (o *Orchestrator) CheckManager(ctx context.Context) (bool, error) {
	m := o.svc.Manager
	switch o.manager {
	case ManagerIdle:
		st, err := m.StartingStatus(ctx)
		if err != nil {
			return false, o.fail("manager", err)
		}
		if st == equipment.CommSuccess {
			o.setManager(ManagerReady)
			return true, nil
		}
		o.log.Infow("Starting equipment manager")
		if err := m.Start(ctx); err != nil {
			return false, o.fail("manager", err)
		}
		o.managerPoll = async.NewPoll(ctx, "manager.start", o.opts.ManagerTimeout, o.clock)
		o.setManager(ManagerStarting)
		return false, nil

	case ManagerStarting:
		if o.managerPoll == nil {
			o.managerPoll = async.NewPoll(ctx, "manager.start", o.opts.ManagerTimeout, o.clock)
		}
		out, err := o.managerPoll.Check(func(ctx context.Context) (bool, bool, error) {
			st, err := m.StartingStatus(ctx)
			return st == equipment.CommSuccess, st == equipment.CommError, err
		})
		switch out {
		case async.Succeeded:
			o.managerPoll = nil
			o.log.Infow("Equipment manager started")
			o.setManager(ManagerReady)
			return true, nil
		case async.Pending:
			return false, nil
		}
		o.managerPoll = nil
		if err == nil {
			err = errors.New("equipment manager reported a start failure")
		}
		return false, o.fail("manager", err)

	case ManagerStopping:
		st, err := m.StartingStatus(ctx)
		if err != nil {
			return false, o.fail("manager", err)
		}
		if st == equipment.CommIdle {
			o.log.Infow("Equipment manager stopped")
			o.setManager(ManagerIdle)
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// StopManager asks the equipment manager to stop. CheckManager reports
// when it has.
func (o *Orchestrator) StopManager(ctx context.Context) error {
	if o.manager == ManagerIdle || o.manager == ManagerStopping {
		return nil
	}
	o.log.Infow("Stopping equipment manager")
	if err := o.svc.Manager.Stop(ctx); err != nil {
		return errors.Wrap(err, "stop equipment manager")
	}
	o.managerPoll = nil
	o.setManager(ManagerStopping)
	o.setDevices(DevicesIdle)
	return nil
}

// CheckDevices connects the devices and discovers their capabilities. It
// reports true once devices are ready, or once a disconnect has finished.
func (o *Orchestrator) CheckDevices(ctx context.Context) (bool, error) {
	m := o.svc.Manager
	switch o.devices {
	case DevicesIdle:
		st, err := m.ConnectionStatus(ctx)
		if err != nil {
			return false, o.fail("devices", err)
		}
		if st == equipment.CommSuccess {
			o.setDevices(DevicesPropertyCheck)
			return false, nil
		}
		o.log.Infow("Connecting devices")
		if err := m.ConnectDevices(ctx); err != nil {
			return false, o.fail("devices", err)
		}
		o.connectPoll = async.NewPoll(ctx, "manager.connect", o.opts.ConnectTimeout, o.clock)
		o.connectRetry.Reset()
		o.setDevices(DevicesConnecting)
		return false, nil

	case DevicesConnecting:
		if o.connectPoll == nil {
			o.connectPoll = async.NewPoll(ctx, "manager.connect", o.opts.ConnectTimeout, o.clock)
		}
		out, err := o.connectPoll.Check(func(ctx context.Context) (bool, bool, error) {
			st, err := m.ConnectionStatus(ctx)
			return st == equipment.CommSuccess, st == equipment.CommError, err
		})
		switch out {
		case async.Succeeded:
			o.connectPoll = nil
			o.connectRetry.Reset()
			o.log.Infow("Devices connected")
			o.setDevices(DevicesPropertyCheck)
			return false, nil
		case async.Pending:
			return false, nil
		case async.Failed, async.Cancelled:
			if err != nil {
				o.connectPoll = nil
				return false, o.fail("devices", err)
			}
		}
		if !o.connectRetry.Next() {
			o.connectPoll = nil
			return false, o.fail("devices", o.connectRetry.Err())
		}
		o.log.Warnw("Device connection failed, retrying",
			logger.FieldAttempt, o.connectRetry.Count(),
			logger.FieldError, err)
		if err := m.ConnectDevices(ctx); err != nil {
			return false, o.fail("devices", err)
		}
		o.connectPoll.Restart()
		return false, nil

	case DevicesDisconnecting:
		st, err := m.ConnectionStatus(ctx)
		if err != nil {
			return false, o.fail("devices", err)
		}
		if st == equipment.CommIdle {
			o.log.Infow("Devices disconnected")
			o.setDevices(DevicesIdle)
			return true, nil
		}
		return false, nil

	case DevicesPropertyCheck:
		o.checkProperties(ctx)
		o.setDevices(DevicesReady)
		return true, nil
	}
	return true, nil
}

// DisconnectDevices asks the manager to disconnect every device.
func (o *Orchestrator) DisconnectDevices(ctx context.Context) error {
	if o.devices == DevicesIdle || o.devices == DevicesDisconnecting {
		return nil
	}
	o.log.Infow("Disconnecting devices")
	if err := o.svc.Manager.DisconnectDevices(ctx); err != nil {
		return errors.Wrap(err, "disconnect devices")
	}
	o.connectPoll = nil
	o.setDevices(DevicesDisconnecting)
	return nil
}

// checkProperties asks every device what it supports. A device that does
// not answer is treated as unable.
func (o *Orchestrator) checkProperties(ctx context.Context) {
	supports := func(name string, q func(context.Context) (bool, error)) bool {
		ok, err := q(ctx)
		if err != nil {
			o.log.Warnw("Capability query failed", logger.FieldDevice, name, logger.FieldError, err)
			return false
		}
		return ok
	}
	o.caps.MountPark = supports("mount", o.svc.Mount.CanPark)
	o.caps.DomePark = supports("dome", o.svc.Dome.CanPark)
	o.caps.CapPark = supports("dustcap", o.svc.DustCap.CanPark)
	o.caps.CoolerControl = supports("capture", o.svc.Capture.HasCoolerControl)

	period, err := o.svc.Weather.UpdatePeriod(ctx)
	if err != nil {
		o.caps.Weather = false
		o.caps.WeatherPeriod = 0
		o.log.Infow("No weather station", logger.FieldError, err)
	} else {
		o.caps.Weather = true
		o.caps.WeatherPeriod = time.Duration(period) * time.Second
		if period > 0 && o.onWeather != nil {
			o.onWeather(o.caps.WeatherPeriod)
		}
	}

	o.log.Infow("Device capabilities",
		"mount_park", o.caps.MountPark,
		"dome_park", o.caps.DomePark,
		"cap_park", o.caps.CapPark,
		"cooler", o.caps.CoolerControl,
		"weather", o.caps.Weather,
		"weather_period", o.caps.WeatherPeriod)
}

// CheckStartup advances the startup procedure by one step. needsLight is
// whether the job about to run captures light frames; without them the
// unpark steps are skipped.
func (o *Orchestrator) CheckStartup(ctx context.Context, needsLight bool) (bool, error) {
	switch o.startup {
	case StartupIdle:
		st, err := o.svc.Manager.StartingStatus(ctx)
		if err != nil {
			o.setStartup(NextStartup(o.startup, EventFailed))
			return true, o.fail("startup", err)
		}
		if st == equipment.CommSuccess {
			if needsLight {
				o.setStartup(StartupUnparkDome)
			} else {
				o.setStartup(StartupComplete)
			}
			return true, nil
		}
		if o.opts.Profile != "" && o.opts.Profile != DefaultProfile {
			if err := o.svc.Manager.SetProfile(ctx, o.opts.Profile); err != nil {
				o.setStartup(NextStartup(o.startup, EventFailed))
				return true, o.fail("startup", err)
			}
		}
		if o.procedure.StartupScript == "" {
			o.setStartup(NextStartup(o.startup, EventSkip))
			return false, nil
		}
		s, err := StartScript(ctx, o.procedure.StartupScript, o.openLog)
		if err != nil {
			o.setStartup(NextStartup(o.startup, EventFailed))
			return true, o.fail("startup", err)
		}
		o.script = s
		o.setStartup(NextStartup(o.startup, EventIssued))
		return false, nil

	case StartupScript:
		ev, err := o.pollScript()
		o.setStartup(NextStartup(o.startup, ev))
		if ev == EventFailed {
			return true, o.fail("startup", err)
		}
		return false, nil

	case StartupComplete:
		return true, nil

	case StartupError:
		return true, o.err
	}

	if o.startup == StartupUnparkDome && !needsLight {
		o.setStartup(StartupComplete)
		return true, nil
	}
	ev, err := drive(ctx, o, startupTable, o.startup, true)
	o.setStartup(NextStartup(o.startup, ev))
	if ev == EventFailed {
		return true, o.fail("startup", err)
	}
	return o.startup == StartupComplete, nil
}

// CheckShutdown advances the shutdown procedure by one step.
func (o *Orchestrator) CheckShutdown(ctx context.Context) (bool, error) {
	switch o.shutdown {
	case ShutdownIdle:
		if o.Plan().WarmCCD() {
			o.closeLog.Infow("Warming up camera")
			if err := o.svc.Capture.SetCoolerControl(ctx, false); err != nil {
				o.closeLog.Warnw("Failed to disable camera cooling", logger.FieldError, err)
			}
		}
		o.setShutdown(FirstShutdownStep(o.Plan()))
		return o.shutdown == ShutdownComplete, nil

	case ShutdownScript:
		if o.procedure.ShutdownScript == "" {
			o.setShutdown(NextShutdown(o.shutdown, EventSkip))
			return true, nil
		}
		if o.opts.ShutdownScriptTerminatesDevices && o.manager != ManagerIdle {
			if o.manager == ManagerStopping {
				_, err := o.CheckManager(ctx)
				return false, err
			}
			if err := o.StopManager(ctx); err != nil {
				o.setShutdown(NextShutdown(o.shutdown, EventFailed))
				return true, o.fail("shutdown", err)
			}
			return false, nil
		}
		s, err := StartScript(ctx, o.procedure.ShutdownScript, o.closeLog)
		if err != nil {
			o.setShutdown(NextShutdown(o.shutdown, EventFailed))
			return true, o.fail("shutdown", err)
		}
		o.script = s
		o.setShutdown(NextShutdown(o.shutdown, EventIssued))
		return false, nil

	case ShutdownScriptRunning:
		ev, err := o.pollScript()
		o.setShutdown(NextShutdown(o.shutdown, ev))
		if ev == EventFailed {
			return true, o.fail("shutdown", err)
		}
		return o.shutdown == ShutdownComplete, nil

	case ShutdownComplete:
		return true, nil

	case ShutdownError:
		return true, o.err
	}

	ev, err := drive(ctx, o, shutdownTable, o.shutdown, true)
	o.setShutdown(NextShutdown(o.shutdown, ev))
	if ev == EventFailed {
		return true, o.fail("shutdown", err)
	}
	return o.shutdown == ShutdownComplete, nil
}

// RequestPark starts parking the mount while the scheduler sleeps.
func (o *Orchestrator) RequestPark() { o.setParkWait(ParkWaitPark) }

// RequestUnpark starts unparking the mount before the next job.
func (o *Orchestrator) RequestUnpark() { o.setParkWait(ParkWaitUnpark) }

// CheckParkWait advances a requested park or unpark. It reports true when
// no park-wait operation is in progress.
func (o *Orchestrator) CheckParkWait(ctx context.Context) (bool, error) {
	switch o.parkWait {
	case ParkWaitIdle, ParkWaitParked:
		return true, nil
	case ParkWaitUnparked:
		// the mount is in use again; a later sleep may park it
		o.setParkWait(ParkWaitIdle)
		return true, nil
	case ParkWaitError:
		return true, o.err
	}
	ev, err := drive(ctx, o, parkWaitTable, o.parkWait, false)
	o.setParkWait(NextParkWait(o.parkWait, ev))
	if ev == EventFailed {
		return true, o.fail("park wait", err)
	}
	return o.parkWait == ParkWaitParked || o.parkWait == ParkWaitUnparked, nil
}

// WindDown disconnects devices and stops the manager after a shutdown,
// when configured to. It reports true once nothing is left to stop.
func (o *Orchestrator) WindDown(ctx context.Context) (bool, error) {
	if o.devices == DevicesDisconnecting {
		if done, err := o.CheckDevices(ctx); !done || err != nil {
			return false, err
		}
	}
	if o.devices != DevicesIdle && o.opts.StopManagerAfterShutdown {
		return false, o.DisconnectDevices(ctx)
	}
	if o.manager == ManagerStopping {
		if done, err := o.CheckManager(ctx); !done || err != nil {
			return false, err
		}
	}
	if o.manager != ManagerIdle && o.opts.StopManagerAfterShutdown {
		return false, o.StopManager(ctx)
	}
	return true, nil
}

// Reset returns every machine to a resumable point after the run stops.
// A completed startup resumes at its first unpark step so that only what
// is not yet unparked is retried. A preemptive reset leaves a running
// shutdown script alone.
func (o *Orchestrator) Reset(preemptive bool) {
	o.manager = ManagerIdle
	o.devices = DevicesIdle
	o.parkWait = ParkWaitIdle

	if o.startup != StartupComplete || preemptive {
		if o.startup == StartupScript && o.script != nil {
			o.script.Terminate()
			o.script = nil
		}
		o.startup = StartupIdle
	} else {
		o.startup = ResumeStartup(o.Plan())
	}
	o.shutdown = ShutdownIdle

	o.cancelPolls()
	o.connectRetry.Reset()
	o.err = nil

	if o.script != nil {
		if !preemptive {
			o.script.Terminate()
		}
		o.script = nil
	}
}

// Abort stops a manually started procedure: the script is terminated, any
// moving dome or mount is halted and both procedures return to Idle.
func (o *Orchestrator) Abort(ctx context.Context) error {
	var errs error
	if o.script != nil {
		o.script.Terminate()
		o.script = nil
	}
	switch {
	case o.startup == StartupUnparkingDome, o.shutdown == ShutdownParkingDome:
		if err := o.svc.Dome.Abort(ctx); err != nil {
			errs = errors.Wrap(err, "abort dome")
		}
	case o.startup == StartupUnparkingMount, o.shutdown == ShutdownParkingMount:
		if err := o.svc.Mount.Abort(ctx); err != nil {
			errs = errors.Wrap(err, "abort mount")
		}
	}
	o.cancelPolls()
	o.setStartup(StartupIdle)
	o.setShutdown(ShutdownIdle)
	return errs
}

func (o *Orchestrator) cancelPolls() {
	for _, op := range o.ops {
		if op.poll != nil {
			op.poll.Cancel()
			op.poll = nil
		}
		op.retry.Reset()
	}
	if o.managerPoll != nil {
		o.managerPoll.Cancel()
		o.managerPoll = nil
	}
	if o.connectPoll != nil {
		o.connectPoll.Cancel()
		o.connectPoll = nil
	}
}

func (o *Orchestrator) pollScript() (Event, error) {
	if o.script == nil {
		return EventFailed, errors.New("script is not running")
	}
	done, code := o.script.Poll()
	if !done {
		return EventPending, nil
	}
	line := o.script.Line()
	o.script = nil
	if code != 0 {
		return EventFailed, errors.Newf("script %q exited with code %d", line, code)
	}
	o.log.Infow("Script finished", logger.FieldFile, line)
	return EventDone, nil
}

// drive runs the park step s of t. When gated, a step the plan disables is
// skipped.
func drive[S ~int](ctx context.Context, o *Orchestrator, t table[S], s S, gated bool) (Event, error) {
	st, ok := t.lookup(s)
	if !ok {
		return EventPending, nil
	}
	if s == st.rest {
		if gated && !o.Plan().Enabled(st.device, st.park) {
			return EventSkip, nil
		}
		return o.startPark(ctx, st.device, st.park)
	}
	return o.checkPark(ctx, st.device, st.park)
}

func (o *Orchestrator) unit(d Device) parkable {
	switch d {
	case DeviceDome:
		return o.svc.Dome
	case DeviceCap:
		return o.svc.DustCap
	}
	return o.svc.Mount
}

func (o *Orchestrator) timeout(d Device) time.Duration {
	switch d {
	case DeviceDome:
		return o.opts.DomeTimeout
	case DeviceCap:
		return o.opts.CapTimeout
	}
	return o.opts.MountTimeout
}

func (o *Orchestrator) op(d Device) *parkOp {
	op, ok := o.ops[d]
	if !ok {
		op = &parkOp{retry: async.NewRetryCounter(d.String() + ".park")}
		o.ops[d] = op
	}
	return op
}

func targetStatus(park bool) (target, busy equipment.ParkingStatus) {
	if park {
		return equipment.Parked, equipment.ParkingBusy
	}
	return equipment.Unparked, equipment.UnparkingBusy
}

func verb(park bool) string {
	if park {
		return "park"
	}
	return "unpark"
}

func (o *Orchestrator) issue(ctx context.Context, d Device, park bool) error {
	unit := o.unit(d)
	if park {
		return unit.Park(ctx)
	}
	return unit.Unpark(ctx)
}

// startPark queries d and issues the request unless d is already there or
// already moving there.
func (o *Orchestrator) startPark(ctx context.Context, d Device, park bool) (Event, error) {
	log := o.devLog[d]
	target, busy := targetStatus(park)

	op := o.op(d)
	st, err := o.unit(d).ParkingStatus(ctx)
	if err != nil {
		return o.parkFailed(d, op, errors.Wrapf(err, "%s parking status", d))
	}
	if st == target {
		log.Infow("Already in position", logger.FieldDevice, d.String(), logger.FieldStatus, st.String())
		op.retry.Reset()
		return EventAlready, nil
	}

	if st == busy {
		log.Infow("Already moving", logger.FieldDevice, d.String(), logger.FieldStatus, st.String())
	} else {
		log.Infow("Issuing "+verb(park), logger.FieldDevice, d.String())
		if err := o.issue(ctx, d, park); err != nil {
			return o.parkFailed(d, op, errors.Wrapf(err, "%s %s", d, verb(park)))
		}
	}
	if op.poll != nil {
		op.poll.Cancel()
	}
	op.poll = async.NewPoll(ctx, d.String()+"."+verb(park), o.timeout(d), o.clock)
	return EventIssued, nil
}

// checkPark polls an issued request. A request that stays busy past its
// timeout is issued again until the retry cap is reached.
func (o *Orchestrator) checkPark(ctx context.Context, d Device, park bool) (Event, error) {
	op := o.op(d)
	if op.poll == nil {
		ev, err := o.startPark(ctx, d, park)
		if ev == EventIssued {
			return EventPending, err
		}
		return ev, err
	}

	log := o.devLog[d]
	target, _ := targetStatus(park)
	unit := o.unit(d)
	var last equipment.ParkingStatus
	out, err := op.poll.Check(func(ctx context.Context) (bool, bool, error) {
		st, err := unit.ParkingStatus(ctx)
		last = st
		return st == target, st == equipment.ParkingError, err
	})

	switch out {
	case async.Succeeded:
		log.Infow("In position",
			logger.FieldDevice, d.String(),
			logger.FieldStatus, last.String(),
			logger.FieldDurationMS, op.poll.Elapsed().Milliseconds())
		op.poll = nil
		op.retry.Reset()
		return EventDone, nil

	case async.Pending:
		return EventPending, nil

	case async.TimedOut:
		if op.retry.Next() {
			log.Warnw("Still moving after timeout, issuing again",
				logger.FieldDevice, d.String(),
				logger.FieldAttempt, op.retry.Count(),
				logger.FieldStatus, last.String())
			if err := o.issue(ctx, d, park); err != nil {
				op.poll = nil
				return o.parkFailed(d, op, errors.Wrapf(err, "%s %s", d, verb(park)))
			}
			op.poll.Restart()
			return EventPending, nil
		}
		exhausted := op.retry.Err()
		op.poll = nil
		op.retry.Reset()
		return EventFailed, exhausted

	case async.Cancelled:
		op.poll = nil
		op.retry.Reset()
		return EventFailed, err
	}

	// a device that reports a parking error is asked again; a failed query
	// is repeated on the same request
	if err == nil {
		err = errors.Newf("%s reported a parking error", d)
		op.poll = nil
	} else {
		err = errors.Wrapf(err, "%s parking status", d)
	}
	return o.parkFailed(d, op, err)
}

// parkFailed counts a failed parking call against the step's retry cap.
// Recoverable and timed out calls are tried again on the next tick, with no
// poll outstanding the request is issued again. Anything else, or a step out
// of retries, fails the machine.
func (o *Orchestrator) parkFailed(d Device, op *parkOp, err error) (Event, error) {
	ec := async.ClassifyError(op.retry.Name(), err)
	if (ec.Kind == async.Recoverable || ec.Kind == async.Timeout) && op.retry.Next() {
		o.devLog[d].Warnw("Parking call failed, trying again",
			logger.FieldDevice, d.String(),
			logger.FieldStage, ec.Stage,
			logger.FieldAttempt, op.retry.Count(),
			logger.FieldErrorKind, ec.Kind.String(),
			logger.FieldError, err)
		return EventPending, nil
	}
	if op.poll != nil {
		op.poll.Cancel()
		op.poll = nil
	}
	if op.retry.Exhausted() {
		err = errors.WithSecondaryError(op.retry.Err(), err)
	}
	op.retry.Reset()
	o.devLog[d].Errorw("Parking failed",
		logger.FieldDevice, d.String(),
		logger.FieldStage, ec.Stage,
		logger.FieldErrorKind, ec.Kind.String(),
		logger.FieldError, err)
	return EventFailed, err
}
