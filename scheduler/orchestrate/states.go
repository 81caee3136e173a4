package orchestrate

// StartupState is the progress of the startup procedure.
type StartupState int

const (
	StartupIdle StartupState = iota
	StartupScript
	StartupUnparkDome
	StartupUnparkingDome
	StartupUnparkMount
	StartupUnparkingMount
	StartupUnparkCap
	StartupUnparkingCap
	StartupComplete
	StartupError
)

var startupNames = [...]string{
	"IDLE", "SCRIPT", "UNPARK_DOME", "UNPARKING_DOME", "UNPARK_MOUNT",
	"UNPARKING_MOUNT", "UNPARK_CAP", "UNPARKING_CAP", "COMPLETE", "ERROR",
}

func (s StartupState) String() string {
	if s < 0 || int(s) >= len(startupNames) {
		return "UNKNOWN"
	}
	return startupNames[s]
}

// ShutdownState is the progress of the shutdown procedure.
type ShutdownState int

const (
	ShutdownIdle ShutdownState = iota
	ShutdownParkCap
	ShutdownParkingCap
	ShutdownParkMount
	ShutdownParkingMount
	ShutdownParkDome
	ShutdownParkingDome
	ShutdownScript
	ShutdownScriptRunning
	ShutdownComplete
	ShutdownError
)

var shutdownNames = [...]string{
	"IDLE", "PARK_CAP", "PARKING_CAP", "PARK_MOUNT", "PARKING_MOUNT",
	"PARK_DOME", "PARKING_DOME", "SCRIPT", "SCRIPT_RUNNING", "COMPLETE", "ERROR",
}

func (s ShutdownState) String() string {
	if s < 0 || int(s) >= len(shutdownNames) {
		return "UNKNOWN"
	}
	return shutdownNames[s]
}

// Finished reports whether the shutdown reached a terminal state.
func (s ShutdownState) Finished() bool {
	return s == ShutdownComplete || s == ShutdownError
}

// ParkWaitState is the progress of parking the mount between jobs.
type ParkWaitState int

const (
	ParkWaitIdle ParkWaitState = iota
	ParkWaitPark
	ParkWaitParking
	ParkWaitParked
	ParkWaitUnpark
	ParkWaitUnparking
	ParkWaitUnparked
	ParkWaitError
)

var parkWaitNames = [...]string{
	"IDLE", "PARK", "PARKING", "PARKED", "UNPARK", "UNPARKING", "UNPARKED", "ERROR",
}

func (s ParkWaitState) String() string {
	if s < 0 || int(s) >= len(parkWaitNames) {
		return "UNKNOWN"
	}
	return parkWaitNames[s]
}

// ManagerState tracks the equipment manager process.
type ManagerState int

const (
	ManagerIdle ManagerState = iota
	ManagerStarting
	ManagerStopping
	ManagerReady
)

var managerNames = [...]string{"IDLE", "STARTING", "STOPPING", "READY"}

func (s ManagerState) String() string {
	if s < 0 || int(s) >= len(managerNames) {
		return "UNKNOWN"
	}
	return managerNames[s]
}

// DevicesState tracks the device connection.
type DevicesState int

const (
	DevicesIdle DevicesState = iota
	DevicesConnecting
	DevicesDisconnecting
	DevicesPropertyCheck
	DevicesReady
)

var devicesNames = [...]string{"IDLE", "CONNECTING", "DISCONNECTING", "PROPERTY_CHECK", "READY"}

func (s DevicesState) String() string {
	if s < 0 || int(s) >= len(devicesNames) {
		return "UNKNOWN"
	}
	return devicesNames[s]
}
