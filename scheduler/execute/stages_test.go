package execute

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/nightshift/scheduler/job"
)

func TestNextAction(t *testing.T) {
	all := job.UseTrack | job.UseFocus | job.UseAlign | job.UseGuide

	tests := []struct {
		name string
		p    Pipeline
		want Action
	}{
		{"idle full pipeline", Pipeline{Stage: job.StageIdle, Steps: all, NeedsLight: true}, ActionSlew},
		{"idle without light", Pipeline{Stage: job.StageIdle, Steps: all}, ActionCapture},
		{"idle focus first", Pipeline{Stage: job.StageIdle, Steps: job.UseFocus | job.UseGuide, NeedsLight: true}, ActionFocus},
		{"idle already focused", Pipeline{Stage: job.StageIdle, Steps: job.UseFocus | job.UseGuide, NeedsLight: true, Autofocused: true}, ActionGuide},
		{"idle nothing", Pipeline{Stage: job.StageIdle, NeedsLight: true}, ActionCapture},
		{"slewed to focus", Pipeline{Stage: job.StageSlewComplete, Steps: all}, ActionFocus},
		{"slewed to align", Pipeline{Stage: job.StageSlewComplete, Steps: job.UseTrack | job.UseAlign}, ActionAlign},
		{"focused to align", Pipeline{Stage: job.StageFocusComplete, Steps: all}, ActionAlign},
		{"focused to capture", Pipeline{Stage: job.StageFocusComplete, Steps: job.UseFocus}, ActionCapture},
		{"aligned", Pipeline{Stage: job.StageAlignComplete, Steps: all}, ActionReslew},
		{"reslewed refocus", Pipeline{Stage: job.StageReslewingComplete, Steps: all, InSequenceFocus: true}, ActionFocus},
		{"reslewed to guide", Pipeline{Stage: job.StageReslewingComplete, Steps: all}, ActionGuide},
		{"refocused to capture", Pipeline{Stage: job.StagePostAlignFocusingComplete, Steps: job.UseFocus}, ActionCapture},
		{"guiding", Pipeline{Stage: job.StageGuidingComplete, Steps: all}, ActionCapture},
		{"busy stage", Pipeline{Stage: job.StageCapturing, Steps: all}, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextAction(tt.p))
		})
	}
}
