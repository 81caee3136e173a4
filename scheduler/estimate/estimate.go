// Package estimate predicts how long a job will take from its capture
// sequence, its pipeline steps and the frames already on disk.
package estimate

import (
	"math"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/sequence"
)

// Pipeline overheads and per-frame allowances, in seconds.
const (
	TrackOverhead        = 30
	FocusOverhead        = 120
	AlignOverhead        = 30
	GuideOverhead        = 120
	InSequenceFocusFrame = 30
	DitherFrame          = 15
)

// Options tune the estimate.
type Options struct {
	RememberJobProgress bool
	DitherEnabled       bool
	DitherFrames        int
}

// Estimator computes job durations. It is not safe for concurrent use.
type Estimator struct {
	Options
	Load  func(path string) (*sequence.Sequence, error)
	Count func(dir, prefix string) (int, error)

	log      *zap.SugaredLogger
	captured map[string]int
}

// New returns an estimator reading sequences and frames from disk.
func New(opts Options, log *zap.SugaredLogger) *Estimator {
	return &Estimator{
		Options:  opts,
		Load:     sequence.Load,
		Count:    sequence.CompletedFiles,
		log:      logger.AddEvalSymbol(log),
		captured: make(map[string]int),
	}
}

// Captured returns the frames on disk attributed to signature by the last
// UpdateCompleted.
func (e *Estimator) Captured(signature string) int { return e.captured[signature] }

// UpdateCompleted recounts the frames on disk for every sequence item of the
// queue. Frames of a completed job are not credited to later jobs writing to
// the same signature.
func (e *Estimator) UpdateCompleted(jobs []*job.Job) {
	finished := make(map[string]int)
	e.captured = make(map[string]int)

	for _, j := range jobs {
		seq, err := e.Load(j.Sequence)
		if err != nil {
			continue
		}
		target := j.TargetName()
		for _, it := range seq.Items {
			if it.Upload == sequence.UploadRemote {
				continue
			}
			sig := it.Signature(target)
			dir := it.FITSDirectory + it.DirectoryPostfix(target)
			n, err := e.Count(dir, it.FullPrefix())
			if err != nil {
				e.log.Warnw("Failed to count captured frames", logger.FieldFile, dir, logger.FieldError, err)
				n = 0
			}
			e.captured[sig] = n - finished[sig]
			if j.State() == job.StateComplete {
				finished[sig] += it.Count
			}
		}
	}
}

// Estimate sets the job's estimated duration and the derived light-frame,
// in-sequence focus and frame count fields. queue is every job of the
// schedule, used to attribute frames on disk.
func (e *Estimator) Estimate(queue []*job.Job, j *job.Job) error {
	e.UpdateCompleted(queue)

	seq, err := e.Load(j.Sequence)
	if err != nil {
		return errors.Wrapf(err, "cannot estimate %s", j.Name)
	}
	j.InSequenceFocus = seq.Autofocus

	target := j.TargetName()
	lightFramesRequired := false
	totalSequence, totalCompleted := 0, 0
	total := 0.0

	for _, it := range seq.Items {
		if it.Upload == sequence.UploadRemote {
			e.log.Infow("Cannot estimate time since the sequence saves the files remotely", logger.FieldJob, j.Name)
			j.EstimatedTime = job.EstimateIndeterminate
			j.LightFramesRequired = seq.HasLightFrames()
			return nil
		}

		completed := 0
		if e.RememberJobProgress {
			sig := it.Signature(target)
			completed = e.captured[sig]
			if completed < it.Count {
				if j.CapturedFrames == nil {
					j.CapturedFrames = make(map[string]int)
				}
				j.CapturedFrames[sig] = completed
			}
		}

		if it.Type == sequence.FrameLight && (completed < it.Count || j.CompletionCondition == job.FinishLoop) {
			lightFramesRequired = true
			if j.CompletionCondition == job.FinishLoop ||
				(j.StartupCondition == job.StartAt && j.CompletionCondition == job.FinishAt) {
				break
			}
		}

		totalSequence += it.Count
		totalCompleted += completed
		total += math.Abs(it.Duration(it.Count - completed))

		if completed < it.Count && it.Type == sequence.FrameLight {
			remaining := it.Count - completed
			if seq.Autofocus {
				total += float64(remaining * InSequenceFocusFrame)
			}
			if j.Steps.Has(job.UseGuide) && e.DitherEnabled {
				frames := e.DitherFrames
				if frames < 1 {
					frames = 1
				}
				total += float64((remaining * DitherFrame) / frames)
			}
		}
	}

	j.LightFramesRequired = lightFramesRequired
	j.SequenceCount = totalSequence
	j.CompletedCount = totalCompleted

	if j.CompletionCondition == job.FinishLoop {
		j.EstimatedTime = job.EstimateIndeterminate
		return nil
	}

	if j.StartupCondition == job.StartAt && j.CompletionCondition == job.FinishAt {
		j.EstimatedTime = int64(j.CompletionTime.Sub(j.StartupTime).Seconds())
		return nil
	}

	if totalCompleted > 0 && totalCompleted >= totalSequence {
		e.log.Infow("Observation job is already complete", logger.FieldJob, j.Name)
		j.EstimatedTime = 0
		return nil
	}

	if lightFramesRequired {
		if j.Steps.Has(job.UseTrack) {
			total += TrackOverhead
		}
		if j.Steps.Has(job.UseFocus) {
			total += FocusOverhead
		}
		if j.Steps.Has(job.UseAlign) {
			total += AlignOverhead
		}
		if j.Steps.Has(job.UseGuide) {
			total += GuideOverhead
		}
	}

	total *= float64(j.RepeatsRequired + 1)
	j.EstimatedTime = int64(total)

	e.log.Debugw("Observation job estimated",
		logger.FieldJob, j.Name,
		logger.FieldEstimate, j.EstimatedTime)
	return nil
}
