package execute

import "github.com/teranos/nightshift/scheduler/job"

// Action is the command the pipeline issues next.
type Action int

const (
	ActionNone    Action = iota
	ActionSlew           // point the mount at the target
	ActionFocus          // run autofocus, or the post-alignment refocus
	ActionAlign          // plate-solve and correct the pointing
	ActionReslew         // wait for the aligner's corrective slew
	ActionGuide          // calibrate and start guiding
	ActionCapture        // start the capture sequence
)

var actionNames = [...]string{"none", "slew", "focus", "align", "reslew", "guide", "capture"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Pipeline is what NextAction needs to know about a running job.
type Pipeline struct {
	Stage           job.Stage
	Steps           job.Steps
	NeedsLight      bool // the sequence captures light frames
	Autofocused     bool // autofocus already succeeded during this run
	InSequenceFocus bool // the sequence refocuses by itself
}

// NextAction returns the command that follows p.Stage. Disabled steps are
// skipped; a job without light frames goes straight to capture.
func NextAction(p Pipeline) Action {
	has := p.Steps.Has
	focus := has(job.UseFocus) && !p.Autofocused

	switch p.Stage {
	case job.StageIdle:
		if !p.NeedsLight {
			return ActionCapture
		}
		switch {
		case has(job.UseTrack):
			return ActionSlew
		case focus:
			return ActionFocus
		case has(job.UseAlign):
			return ActionAlign
		case has(job.UseGuide):
			return ActionGuide
		}
		return ActionCapture

	case job.StageSlewComplete:
		switch {
		case focus:
			return ActionFocus
		case has(job.UseAlign):
			return ActionAlign
		case has(job.UseGuide):
			return ActionGuide
		}
		return ActionCapture

	case job.StageFocusComplete:
		switch {
		case has(job.UseAlign):
			return ActionAlign
		case has(job.UseGuide):
			return ActionGuide
		}
		return ActionCapture

	case job.StageAlignComplete:
		return ActionReslew

	case job.StageReslewingComplete:
		switch {
		case has(job.UseFocus) && p.InSequenceFocus:
			return ActionFocus
		case has(job.UseGuide):
			return ActionGuide
		}
		return ActionCapture

	case job.StagePostAlignFocusingComplete:
		if has(job.UseGuide) {
			return ActionGuide
		}
		return ActionCapture

	case job.StageGuidingComplete:
		return ActionCapture
	}
	return ActionNone
}
