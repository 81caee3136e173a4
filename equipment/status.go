package equipment

// ParkingStatus is the park state reported by mount, dome and dust cap.
type ParkingStatus int

const (
	ParkingIdle ParkingStatus = iota
	Parked
	Unparked
	ParkingBusy
	UnparkingBusy
	ParkingError
)

var parkingNames = [...]string{"IDLE", "PARKED", "UNPARKED", "PARKING", "UNPARKING", "ERROR"}

func (p ParkingStatus) String() string {
	if p < 0 || int(p) >= len(parkingNames) {
		return "UNKNOWN"
	}
	return parkingNames[p]
}

// IsParked reports whether the device is stowed. An idle park state counts
// as parked since devices power up stowed.
func (p ParkingStatus) IsParked() bool {
	return p == Parked || p == ParkingIdle
}

// PropertyState is a generic device property state.
type PropertyState int

const (
	StateIdle PropertyState = iota
	StateOk
	StateBusy
	StateAlert
)

var propertyNames = [...]string{"IDLE", "OK", "BUSY", "ALERT"}

func (s PropertyState) String() string {
	if s < 0 || int(s) >= len(propertyNames) {
		return "UNKNOWN"
	}
	return propertyNames[s]
}

// CommStatus is the progress of a manager start or device connection.
type CommStatus int

const (
	CommIdle CommStatus = iota
	CommPending
	CommSuccess
	CommError
)

var commNames = [...]string{"IDLE", "PENDING", "SUCCESS", "ERROR"}

func (c CommStatus) String() string {
	if c < 0 || int(c) >= len(commNames) {
		return "UNKNOWN"
	}
	return commNames[c]
}

// FocusState is the autofocus progress.
type FocusState int

const (
	FocusIdle FocusState = iota
	FocusInProgress
	FocusComplete
	FocusFailed
	FocusAborted
)

var focusNames = [...]string{"IDLE", "IN_PROGRESS", "COMPLETE", "FAILED", "ABORTED"}

func (f FocusState) String() string {
	if f < 0 || int(f) >= len(focusNames) {
		return "UNKNOWN"
	}
	return focusNames[f]
}

// AlignState is the plate-solve progress.
type AlignState int

const (
	AlignIdle AlignState = iota
	AlignInProgress
	AlignComplete
	AlignFailed
	AlignAborted
)

var alignNames = [...]string{"IDLE", "IN_PROGRESS", "COMPLETE", "FAILED", "ABORTED"}

func (a AlignState) String() string {
	if a < 0 || int(a) >= len(alignNames) {
		return "UNKNOWN"
	}
	return alignNames[a]
}

// SolverAction tells the aligner what to do with a solution.
type SolverAction int

const (
	SolverSync SolverAction = iota
	SolverGotoSlew
	SolverNothing
)

// GuideState is the autoguider state.
type GuideState int

const (
	GuideIdle GuideState = iota
	GuideCalibrating
	GuideGuiding
	GuideCalibrationError
	GuideAborted
	GuideDithering
	GuideDitheringError
)

var guideNames = [...]string{"IDLE", "CALIBRATING", "GUIDING", "CALIBRATION_ERROR", "ABORTED", "DITHERING", "DITHERING_ERROR"}

func (g GuideState) String() string {
	if g < 0 || int(g) >= len(guideNames) {
		return "UNKNOWN"
	}
	return guideNames[g]
}

// QueueStatus is the capture sequence queue status string.
type QueueStatus string

const (
	QueueIdle     QueueStatus = "Idle"
	QueueRunning  QueueStatus = "Running"
	QueueAborted  QueueStatus = "Aborted"
	QueueError    QueueStatus = "Error"
	QueueComplete QueueStatus = "Complete"
)
