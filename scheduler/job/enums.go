package job

// State is the job lifecycle state, in increasing progress order.
type State int

const (
	StateIdle State = iota
	StateEvaluation
	StateScheduled
	StateBusy
	StateError
	StateAborted
	StateInvalid
	StateComplete
)

var stateNames = [...]string{"IDLE", "EVALUATION", "SCHEDULED", "BUSY", "ERROR", "ABORTED", "INVALID", "COMPLETE"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether the job has reached an outcome.
func (s State) Terminal() bool { return s >= StateError }

// Stage is the acquisition pipeline stage of a running job.
type Stage int

const (
	StageIdle Stage = iota
	StageSlewing
	StageSlewComplete
	StageFocusing
	StageFocusComplete
	StageAligning
	StageAlignComplete
	StageReslewing
	StageReslewingComplete
	StagePostAlignFocusing
	StagePostAlignFocusingComplete
	StageGuiding
	StageGuidingComplete
	StageCapturing
	StageComplete
)

var stageNames = [...]string{
	"IDLE", "SLEWING", "SLEW_COMPLETE", "FOCUSING", "FOCUS_COMPLETE",
	"ALIGNING", "ALIGN_COMPLETE", "RESLEWING", "RESLEWING_COMPLETE",
	"POSTALIGN_FOCUSING", "POSTALIGN_FOCUSING_COMPLETE",
	"GUIDING", "GUIDING_COMPLETE", "CAPTURING", "COMPLETE",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "UNKNOWN"
	}
	return stageNames[s]
}

// StartupCondition decides when a job may start.
type StartupCondition int

const (
	StartASAP StartupCondition = iota
	StartCulmination
	StartAt
)

var startupNames = [...]string{"ASAP", "Culmination", "At"}

func (c StartupCondition) String() string {
	if c < 0 || int(c) >= len(startupNames) {
		return "Unknown"
	}
	return startupNames[c]
}

// CompletionCondition decides when a job is finished.
type CompletionCondition int

const (
	FinishSequence CompletionCondition = iota
	FinishRepeat
	FinishLoop
	FinishAt
)

var completionNames = [...]string{"Sequence", "Repeat", "Loop", "At"}

func (c CompletionCondition) String() string {
	if c < 0 || int(c) >= len(completionNames) {
		return "Unknown"
	}
	return completionNames[c]
}

// Steps is the set of pipeline steps run before capture.
type Steps uint8

const (
	UseNone  Steps = 0
	UseTrack Steps = 1 << 0
	UseFocus Steps = 1 << 1
	UseAlign Steps = 1 << 2
	UseGuide Steps = 1 << 3
)

// StepNames lists the steps in pipeline order with their file names.
var StepNames = []struct {
	Step Steps
	Name string
}{
	{UseTrack, "Track"},
	{UseFocus, "Focus"},
	{UseAlign, "Align"},
	{UseGuide, "Guide"},
}

// Has reports whether every step in s is set.
func (p Steps) Has(s Steps) bool { return p&s == s && s != 0 }

func (p Steps) String() string {
	if p == UseNone {
		return "None"
	}
	out := ""
	for _, sn := range StepNames {
		if p.Has(sn.Step) {
			if out != "" {
				out += "+"
			}
			out += sn.Name
		}
	}
	return out
}
