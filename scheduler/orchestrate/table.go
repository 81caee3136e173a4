package orchestrate

// Device is a parkable piece of equipment.
type Device int

const (
	DeviceMount Device = iota
	DeviceDome
	DeviceCap
)

var deviceNames = [...]string{"mount", "dome", "dustcap"}

func (d Device) String() string {
	if d < 0 || int(d) >= len(deviceNames) {
		return "unknown"
	}
	return deviceNames[d]
}

// Event is what a machine step observed on one tick.
type Event int

const (
	EventSkip    Event = iota // step disabled or unsupported
	EventAlready              // device already in the target position
	EventIssued               // request accepted, now polling
	EventPending              // still moving
	EventDone                 // target reached or script exited cleanly
	EventFailed               // device error, unreachable or retries exhausted
)

var eventNames = [...]string{"skip", "already", "issued", "pending", "done", "failed"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// step moves one device to its park or unpark position. rest issues the
// request, moving polls it, next follows either.
type step[S ~int] struct {
	device Device
	park   bool
	rest   S
	moving S
	next   S
}

type table[S ~int] struct {
	steps []step[S]
	fail  S
}

func (t table[S]) lookup(s S) (step[S], bool) {
	for _, st := range t.steps {
		if st.rest == s || st.moving == s {
			return st, true
		}
	}
	return step[S]{}, false
}

func (t table[S]) next(s S, ev Event) S {
	st, ok := t.lookup(s)
	if !ok {
		return s
	}
	if ev == EventFailed {
		return t.fail
	}
	if s == st.rest {
		switch ev {
		case EventSkip, EventAlready, EventDone:
			return st.next
		case EventIssued:
			return st.moving
		}
		return s
	}
	switch ev {
	case EventDone, EventAlready:
		return st.next
	}
	return s
}

var startupTable = table[StartupState]{
	steps: []step[StartupState]{
		{DeviceDome, false, StartupUnparkDome, StartupUnparkingDome, StartupUnparkMount},
		{DeviceMount, false, StartupUnparkMount, StartupUnparkingMount, StartupUnparkCap},
		{DeviceCap, false, StartupUnparkCap, StartupUnparkingCap, StartupComplete},
	},
	fail: StartupError,
}

var shutdownTable = table[ShutdownState]{
	steps: []step[ShutdownState]{
		{DeviceCap, true, ShutdownParkCap, ShutdownParkingCap, ShutdownParkMount},
		{DeviceMount, true, ShutdownParkMount, ShutdownParkingMount, ShutdownParkDome},
		{DeviceDome, true, ShutdownParkDome, ShutdownParkingDome, ShutdownScript},
	},
	fail: ShutdownError,
}

var parkWaitTable = table[ParkWaitState]{
	steps: []step[ParkWaitState]{
		{DeviceMount, true, ParkWaitPark, ParkWaitParking, ParkWaitParked},
		{DeviceMount, false, ParkWaitUnpark, ParkWaitUnparking, ParkWaitUnparked},
	},
	fail: ParkWaitError,
}

// NextStartup returns the startup state after ev. From Idle, EventIssued
// means the startup script was launched and EventSkip that there is none.
func NextStartup(s StartupState, ev Event) StartupState {
	switch s {
	case StartupIdle:
		switch ev {
		case EventIssued:
			return StartupScript
		case EventSkip, EventAlready:
			return StartupUnparkDome
		case EventFailed:
			return StartupError
		}
		return s
	case StartupScript:
		switch ev {
		case EventDone:
			return StartupUnparkDome
		case EventFailed:
			return StartupError
		}
		return s
	}
	return startupTable.next(s, ev)
}

// NextShutdown returns the shutdown state after ev. In Script, EventSkip
// means there is no shutdown script and EventIssued that it was launched.
func NextShutdown(s ShutdownState, ev Event) ShutdownState {
	switch s {
	case ShutdownScript:
		switch ev {
		case EventSkip:
			return ShutdownComplete
		case EventIssued:
			return ShutdownScriptRunning
		case EventFailed:
			return ShutdownError
		}
		return s
	case ShutdownScriptRunning:
		switch ev {
		case EventDone:
			return ShutdownComplete
		case EventFailed:
			return ShutdownError
		}
		return s
	}
	return shutdownTable.next(s, ev)
}

// NextParkWait returns the park-wait state after ev.
func NextParkWait(s ParkWaitState, ev Event) ParkWaitState {
	return parkWaitTable.next(s, ev)
}

// FirstShutdownStep returns where a shutdown starts: the first enabled park
// step, else the script, else Complete.
func FirstShutdownStep(p Plan) ShutdownState {
	for _, st := range shutdownTable.steps {
		if p.Enabled(st.device, st.park) {
			return st.rest
		}
	}
	if p.Procedure.ShutdownScript != "" {
		return ShutdownScript
	}
	return ShutdownComplete
}

// ResumeStartup returns where an interrupted but completed startup resumes:
// the first enabled unpark step, else Complete.
func ResumeStartup(p Plan) StartupState {
	for _, st := range startupTable.steps {
		if p.Enabled(st.device, st.park) {
			return st.rest
		}
	}
	return StartupComplete
}
