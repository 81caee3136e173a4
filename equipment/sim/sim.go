// Package sim is an in-memory observatory implementing every equipment
// service. Actions complete after a configurable number of status polls,
// failures and unreachable services can be injected, and every call is
// recorded. It backs the test suites and `nightshift run --simulate`.
package sim

import (
	"sync"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
)

// Operation keys accepted by FailNext.
const (
	OpSlew          = "slew"
	OpFocus         = "focus"
	OpAlign         = "align"
	OpGuide         = "guide"
	OpCapture       = "capture"
	OpMountPark     = "mount.park"
	OpMountUnpark   = "mount.unpark"
	OpDomePark      = "dome.park"
	OpDomeUnpark    = "dome.unpark"
	OpCapPark       = "cap.park"
	OpCapUnpark     = "cap.unpark"
	OpManagerStart  = "manager.start"
	OpDeviceConnect = "manager.connect"
)

// countdown tracks one in-flight action.
type countdown struct {
	active    bool
	remaining int
	fail      bool
}

func (c *countdown) start(latency int, fail bool) {
	c.active = true
	c.remaining = latency
	c.fail = fail
}

// poll advances the action by one status poll.
func (c *countdown) poll() (done, failed bool) {
	if !c.active {
		return false, false
	}
	if c.remaining > 0 {
		c.remaining--
		return false, false
	}
	c.active = false
	return true, c.fail
}

type parkable struct {
	status  equipment.ParkingStatus
	op      countdown
	target  equipment.ParkingStatus
	canPark bool
}

func (p *parkable) begin(target equipment.ParkingStatus, latency int, fail bool) {
	if target == equipment.Parked {
		p.status = equipment.ParkingBusy
	} else {
		p.status = equipment.UnparkingBusy
	}
	p.target = target
	p.op.start(latency, fail)
}

func (p *parkable) poll() equipment.ParkingStatus {
	if done, failed := p.op.poll(); done {
		if failed {
			p.status = equipment.ParkingError
		} else {
			p.status = p.target
		}
	}
	return p.status
}

// Observatory is a simulated set of equipment.
type Observatory struct {
	mu          sync.Mutex
	latency     int
	calls       []string
	unreachable map[string]bool
	failures    map[string]int
	callErrs    map[string][]error

	mount     parkable
	slew      countdown
	slewState equipment.PropertyState
	dome      parkable
	cap       parkable

	focus        countdown
	focusState   equipment.FocusState
	canAutoFocus bool

	align       countdown
	alignState  equipment.AlignState
	alignAction equipment.SolverAction

	guide      countdown
	guideState equipment.GuideState

	capture       countdown
	queueStatus   equipment.QueueStatus
	sequence      string
	targetName    string
	framesMap     map[string]int
	coolerControl bool
	coolerOn      bool

	weatherState  equipment.PropertyState
	weatherPeriod int

	profile       string
	managerOp     countdown
	managerStatus equipment.CommStatus
	connectOp     countdown
	connectStatus equipment.CommStatus
}

// Option configures an Observatory.
type Option func(*Observatory)

// WithLatency sets how many status polls an action stays busy.
func WithLatency(polls int) Option {
	return func(o *Observatory) { o.latency = polls }
}

// WithMountUnparked starts the simulation with the mount, dome and cap open.
func WithMountUnparked() Option {
	return func(o *Observatory) {
		o.mount.status = equipment.Unparked
		o.dome.status = equipment.Unparked
		o.cap.status = equipment.Unparked
	}
}

// New returns an observatory with everything parked, idle and supported.
func New(opts ...Option) *Observatory {
	o := &Observatory{
		latency:       1,
		unreachable:   make(map[string]bool),
		failures:      make(map[string]int),
		callErrs:      make(map[string][]error),
		framesMap:     make(map[string]int),
		canAutoFocus:  true,
		coolerControl: true,
		coolerOn:      true,
		queueStatus:   equipment.QueueIdle,
		weatherState:  equipment.StateOk,
		weatherPeriod: 60,
	}
	o.mount = parkable{status: equipment.Parked, canPark: true}
	o.dome = parkable{status: equipment.Parked, canPark: true}
	o.cap = parkable{status: equipment.Parked, canPark: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Services returns the observatory as equipment services.
func (o *Observatory) Services() equipment.Services {
	return equipment.Services{
		Mount:   mount{o},
		Dome:    dome{o},
		DustCap: dustCap{o},
		Focuser: focuser{o},
		Aligner: aligner{o},
		Guider:  guider{o},
		Capture: capture{o},
		Weather: weather{o},
		Manager: manager{o},
	}
}

// enter records a call and checks reachability. Callers hold no lock.
func (o *Observatory) enter(service, method string) error {
	o.mu.Lock()
	o.calls = append(o.calls, service+"."+method)
	down := o.unreachable[service]
	var injected error
	if errs := o.callErrs[service+"."+method]; len(errs) > 0 {
		injected = errs[0]
		o.callErrs[service+"."+method] = errs[1:]
	}
	o.mu.Unlock()
	if down {
		return errors.NewUnavailableError(service)
	}
	return injected
}

// takeFailure consumes one injected failure for op. Caller holds o.mu.
func (o *Observatory) takeFailure(op string) bool {
	if o.failures[op] > 0 {
		o.failures[op]--
		return true
	}
	return false
}

// FailNext makes the next n runs of op finish with a failure.
func (o *Observatory) FailNext(op string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[op] += n
}

// FailCall makes the next n calls of method (as recorded by Calls, for
// example "mount.ParkingStatus") return err without touching the device.
func (o *Observatory) FailCall(method string, n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < n; i++ {
		o.callErrs[method] = append(o.callErrs[method], err)
	}
}

// SetUnreachable makes every call to service fail with ErrServiceUnavailable.
func (o *Observatory) SetUnreachable(service string, down bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unreachable[service] = down
}

// SetWeather sets the reported weather state.
func (o *Observatory) SetWeather(state equipment.PropertyState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.weatherState = state
}

// SetGuideState overrides the guider state, e.g. to simulate a lost star.
func (o *Observatory) SetGuideState(state equipment.GuideState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.guideState = state
}

// SetCanAutoFocus sets whether the focuser supports autofocus.
func (o *Observatory) SetCanAutoFocus(can bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.canAutoFocus = can
}

// SetMountParking forces the mount parking status.
func (o *Observatory) SetMountParking(status equipment.ParkingStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mount.status = status
	o.mount.op = countdown{}
}

// SetManagerStarted marks the equipment stack as already running and connected.
func (o *Observatory) SetManagerStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.managerStatus = equipment.CommSuccess
	o.connectStatus = equipment.CommSuccess
}

// Calls returns every recorded call as "service.Method".
func (o *Observatory) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

// CallCount returns how many times "service.Method" was called.
func (o *Observatory) CallCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c == name {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (o *Observatory) ResetCalls() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = nil
}

// TargetName returns the last target name sent to capture.
func (o *Observatory) TargetName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.targetName
}

// Sequence returns the sequence file loaded into capture.
func (o *Observatory) Sequence() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sequence
}

// FramesMap returns a copy of the captured-frames map sent to capture.
func (o *Observatory) FramesMap() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.framesMap))
	for k, v := range o.framesMap {
		out[k] = v
	}
	return out
}

// CoolerOn reports whether camera cooling is enabled.
func (o *Observatory) CoolerOn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.coolerOn
}

// Profile returns the equipment profile selected on the manager.
func (o *Observatory) Profile() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile
}

// MountParking returns the mount parking status without polling.
func (o *Observatory) MountParking() equipment.ParkingStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mount.status
}

// DomeParking returns the dome parking status without polling.
func (o *Observatory) DomeParking() equipment.ParkingStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dome.status
}

// CapParking returns the dust cap parking status without polling.
func (o *Observatory) CapParking() equipment.ParkingStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cap.status
}

// Connected reports whether devices are connected.
func (o *Observatory) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connectStatus == equipment.CommSuccess
}

// ManagerRunning reports whether the equipment stack is running.
func (o *Observatory) ManagerRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.managerStatus == equipment.CommSuccess
}
