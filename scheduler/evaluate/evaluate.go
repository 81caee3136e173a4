// Package evaluate implements the selection pass run on every scheduler tick
// while no job is executing: it scores the queue, assigns concrete start
// times, resolves clashing start times and decides what the scheduler does
// next.
package evaluate

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/estimate"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/scheduler/score"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/sky/astro"
)

// Options are the evaluation settings.
type Options struct {
	LeadTime                time.Duration
	PreDawnMargin           time.Duration
	SortJobs                bool
	PreemptiveShutdown      bool
	PreemptiveShutdownAfter time.Duration
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		LeadTime:                5 * time.Minute,
		PreDawnMargin:           30 * time.Minute,
		SortJobs:                true,
		PreemptiveShutdownAfter: 2 * time.Hour,
	}
}

// Conditions is the orchestration state the pass reads.
type Conditions struct {
	StartupComplete bool
	ParkWaitIdle    bool
	ParkWaitParked  bool
	ParkMount       bool // mount parking supported and enabled
	WeatherEnabled  bool
	Weather         equipment.PropertyState
	DevicesReady    bool
	EvaluateOnly    bool
}

// Kind is what the scheduler should do after a pass.
type Kind int

const (
	None               Kind = iota // keep ticking
	Run                            // execute Decision.Job
	Unpark                         // unpark the mount parked while waiting
	Park                           // park the mount until Decision.Job is due
	Sleep                          // disarm the scheduler driver until Decision.Wake
	PreemptiveShutdown             // shut the observatory down until Decision.Wake
	Shutdown                       // nothing left to run, shut down
	Stop                           // nothing left to run, stop
	Evaluated                      // evaluate-only pass finished
)

var kindNames = [...]string{"none", "run", "unpark", "park", "sleep", "preemptive_shutdown", "shutdown", "stop", "evaluated"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Counts summarises the queue after a pass.
type Counts struct {
	Invalid   int
	Aborted   int
	Completed int
	Upcoming  int
}

// Decision is the outcome of a pass.
type Decision struct {
	Kind   Kind
	Job    *job.Job
	Wake   time.Duration
	Counts Counts
}

// Evaluator runs evaluation passes. It is driven from the control loop
// goroutine only.
type Evaluator struct {
	sky       sky.Context
	opts      Options
	estimator *estimate.Estimator
	log       *zap.SugaredLogger
}

// New creates an evaluator.
func New(ctx sky.Context, opts Options, est *estimate.Estimator, log *zap.SugaredLogger) *Evaluator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Evaluator{
		sky:       ctx,
		opts:      opts,
		estimator: est,
		log:       logger.AddEvalSymbol(log),
	}
}

// Options returns the current settings.
func (e *Evaluator) Options() Options { return e.opts }

// SetOptions replaces the settings; used when the configuration is reloaded.
func (e *Evaluator) SetOptions(opts Options) { e.opts = opts }

// Scorer returns a scorer for the night containing now.
func (e *Evaluator) Scorer(now time.Time) *score.Scorer {
	night := score.Night{
		Twilight:      e.sky.Site.Twilight(now),
		PreDawnMargin: e.opts.PreDawnMargin,
	}
	return score.New(e.sky.Site, night, e.log)
}

// PreDawn returns the next pre-dawn cutoff after now.
func (e *Evaluator) PreDawn(now time.Time) time.Time {
	return e.sky.Site.PreDawn(now, e.opts.PreDawnMargin)
}

// pass holds what one evaluation pass computes once.
type pass struct {
	now     time.Time
	scorer  *score.Scorer
	dusk    time.Time
	preDawn time.Time
	cond    Conditions
	queue   []*job.Job
}

// Evaluate runs one pass over jobs.
func (e *Evaluator) Evaluate(jobs []*job.Job, cond Conditions) Decision {
	now := e.sky.Now()
	scorer := e.Scorer(now)
	p := &pass{
		now:     now,
		scorer:  scorer,
		dusk:    scorer.Night.Twilight.DuskTime(),
		preDawn: e.PreDawn(now),
		cond:    cond,
		queue:   jobs,
	}

	for _, j := range jobs {
		if j.State() != job.StateScheduled {
			continue
		}
		if j.FileStartupCondition == job.StartASAP {
			j.StartupCondition = job.StartASAP
			j.StartupTime = time.Time{}
			j.CompletionTime = time.Time{}
		}
		j.SetState(job.StateIdle)
	}

	for _, j := range jobs {
		if j.State() > job.StateScheduled {
			continue
		}
		e.evaluateJob(p, j)
	}

	counts := countStates(jobs)
	if counts.Upcoming == 0 && !cond.EvaluateOnly {
		return e.finish(counts, len(jobs), cond)
	}

	candidates := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.State() <= job.StateScheduled {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return Decision{Kind: Evaluated, Counts: counts}
	}

	if e.opts.SortJobs {
		job.SortByAltitude(candidates, func(j *job.Job) float64 {
			return e.sky.Site.Altitude(astro.Equatorial{RA: j.RA, Dec: j.Dec}, now)
		})
	}

	e.resolveConflicts(candidates, p.preDawn)

	if cond.EvaluateOnly {
		e.log.Infow("Job evaluation complete",
			"scheduled", counts.Upcoming,
			"invalid", counts.Invalid,
			"completed", counts.Completed)
		return Decision{Kind: Evaluated, Counts: counts}
	}

	if e.opts.SortJobs {
		job.SortByScore(candidates)
	}

	for _, j := range candidates {
		if j.Score() > 0 {
			if cond.ParkWaitParked {
				return Decision{Kind: Unpark, Job: j, Counts: counts}
			}
			e.log.Infow("Found candidate job",
				logger.FieldJob, j.Name,
				logger.FieldPriority, j.Priority,
				logger.FieldScore, j.Score())
			return Decision{Kind: Run, Job: j, Counts: counts}
		}
	}

	d := e.waitForNext(candidates, now, cond)
	d.Counts = counts
	return d
}

// evaluateJob scores one job not yet past Scheduled.
func (e *Evaluator) evaluateJob(p *pass, j *job.Job) {
	if j.State() == job.StateIdle {
		j.SetState(job.StateEvaluation)
	}

	if j.CompletionCondition == job.FinishRepeat && j.RepeatsRemaining == 0 {
		e.log.Infow("Observation job has no more runs remaining", logger.FieldJob, j.Name)
		j.SetState(job.StateInvalid)
		return
	}

	if j.EstimatedTime == job.EstimateUnknown {
		if err := e.estimator.Estimate(p.queue, j); err != nil {
			e.log.Warnw("Failed to estimate job", logger.FieldJob, j.Name, logger.FieldError, err)
			j.SetState(job.StateInvalid)
			return
		}
	}

	if j.EstimatedTime == 0 {
		j.SetState(job.StateComplete)
		return
	}

	switch j.StartupCondition {
	case job.StartASAP:
		if !e.evaluateASAP(p, j) {
			return
		}
	case job.StartCulmination:
		at, err := p.scorer.Culmination(j, p.now)
		if err != nil {
			e.log.Infow("Cannot schedule at culmination", logger.FieldJob, j.Name, logger.FieldError, err)
			j.SetState(job.StateInvalid)
			break
		}
		j.StartupTime = at
		j.StartupCondition = job.StartAt
		j.SetState(job.StateScheduled)
		j.SetScore(job.BadScore)
		e.log.Infow("Observation job is scheduled", logger.FieldJob, j.Name, logger.FieldStartAt, at)
		return
	case job.StartAt:
		if !e.evaluateAt(p, j) {
			return
		}
	}

	if j.State() == job.StateEvaluation {
		j.SetState(job.StateScheduled)
	}
}

// evaluateASAP reports whether the job may still be promoted this pass.
func (e *Evaluator) evaluateASAP(p *pass, j *job.Job) bool {
	s := job.HighScore
	if j.LightFramesRequired {
		s = p.scorer.Job(j, p.now)
	}
	j.SetScore(s)

	switch {
	case s < 0:
		minAlt := 0.0
		if j.HasMinAltitude() {
			minAlt = j.MinAltitude
		}
		at, err := p.scorer.AltitudeTime(j, p.now, minAlt, j.MinMoonSeparation)
		if err != nil {
			e.log.Infow("Failed to schedule job", logger.FieldJob, j.Name, logger.FieldError, err)
			j.SetState(job.StateInvalid)
			return true
		}
		j.StartupTime = at
		j.StartupCondition = job.StartAt
		j.SetState(job.StateScheduled)
		// re-checked next pass now that it starts at a fixed time
		j.SetScore(job.BadScore)
		return false
	case !e.weatherOK(p.cond, j):
		j.SetScore(job.BadScore)
	default:
		e.log.Infow("Observation job is due to run as soon as possible", logger.FieldJob, j.Name)
	}
	return true
}

// evaluateAt reports whether the job may still be promoted this pass.
func (e *Evaluator) evaluateAt(p *pass, j *job.Job) bool {
	if j.CompletionCondition == job.FinishAt && !j.CompletionTime.After(j.StartupTime) {
		e.log.Infow("Completion time is earlier than startup time",
			logger.FieldJob, j.Name,
			logger.FieldStartAt, j.StartupTime,
			"complete_at", j.CompletionTime)
		j.SetState(job.StateInvalid)
		return false
	}

	lead := int(e.opts.LeadTime.Seconds())
	until := int(j.StartupTime.Sub(p.now).Seconds())
	var s int16

	switch {
	case until < -lead:
		if j.State() == job.StateEvaluation {
			e.log.Infow("Startup time already passed, job is invalid",
				logger.FieldJob, j.Name, "passed_by", time.Duration(-until)*time.Second)
			j.SetState(job.StateInvalid)
		} else {
			e.log.Infow("Startup time already passed, aborting job",
				logger.FieldJob, j.Name, "passed_by", time.Duration(-until)*time.Second)
			j.SetState(job.StateAborted)
		}
		return false

	case until <= 0:
		s = p.scorer.Job(j, p.now)
		if s < 0 {
			if j.State() == job.StateEvaluation {
				e.log.Infow("Observation job evaluation failed", logger.FieldJob, j.Name, logger.FieldScore, s)
				j.SetState(job.StateInvalid)
			} else {
				e.log.Infow("Observation job score dropped, aborting job",
					logger.FieldJob, j.Name, logger.FieldScore, s, "after_start_s", -until)
				j.SetState(job.StateAborted)
			}
			return false
		}
		if !e.weatherOK(p.cond, j) {
			s += job.BadScore
		}

	case until > lead && until < 12*3600 && j.FileStartupCondition == job.StartASAP:
		// a former ASAP job is pulled in again while it is dark
		if !j.EnforceTwilight || (p.now.After(p.dusk) && p.now.Before(p.preDawn)) {
			j.StartupTime = p.now.Add(e.opts.LeadTime)
		}
		s += job.BadScore

	default:
		if j.State() == job.StateEvaluation && p.scorer.Job(j, j.StartupTime) < 0 {
			e.log.Infow("Observation job evaluation failed at its startup time", logger.FieldJob, j.Name)
			j.SetState(job.StateInvalid)
			return false
		}
		s += job.BadScore
	}

	j.SetScore(s)
	return true
}

// weatherOK reports whether the weather allows j. An alert aborts the job.
func (e *Evaluator) weatherOK(cond Conditions, j *job.Job) bool {
	if !j.EnforceWeather || !cond.WeatherEnabled {
		return true
	}
	switch cond.Weather {
	case equipment.StateOk, equipment.StateBusy:
		return true
	case equipment.StateIdle:
		if cond.DevicesReady {
			e.log.Infow("Weather information is pending", logger.FieldJob, j.Name)
		}
		return true
	}
	j.SetState(job.StateAborted)
	e.log.Infow("Observation job aborted due to bad weather", logger.FieldJob, j.Name)
	return false
}

// resolveConflicts pushes back fixed-time jobs starting within one lead time
// of the earliest fixed-time job. A push that would cross the pre-dawn
// cutoff moves the job to the next day instead.
func (e *Evaluator) resolveConflicts(sorted []*job.Job, preDawn time.Time) {
	var first *job.Job
	for _, j := range sorted {
		if !isFixedScheduled(j) {
			continue
		}
		if first == nil || j.StartupTime.Before(first.StartupTime) {
			first = j
		}
	}
	if first == nil {
		return
	}

	lead := e.opts.LeadTime.Seconds()
	firstStart := first.StartupTime
	lastStart := first.StartupTime
	lastEstimate := float64(first.EstimatedTime)
	days := 0

	for _, j := range sorted {
		if j == first || !isFixedScheduled(j) {
			continue
		}

		gap := j.StartupTime.Sub(firstStart).Seconds()
		if gap < 0 {
			gap = -gap
		}
		if gap < lead {
			delay := gap + lastEstimate
			if delay < lead {
				delay = lead
			}
			shift := time.Duration(delay * float64(time.Second))
			cutoff := preDawn.AddDate(0, 0, days)

			if lastStart.Before(cutoff) && !lastStart.Add(shift).Before(cutoff) {
				days++
				lastStart = j.StartupTime.AddDate(0, 0, days)
			} else {
				lastStart = lastStart.Add(shift)
			}
			j.StartupTime = lastStart
			j.SetState(job.StateScheduled)

			e.log.Infow("Jobs have close start up times, rescheduling",
				logger.FieldJob, j.Name,
				"conflicts_with", first.Name,
				logger.FieldStartAt, j.StartupTime)
		}
		lastEstimate = float64(j.EstimatedTime)
	}
}

func isFixedScheduled(j *job.Job) bool {
	return j.State() == job.StateScheduled && j.StartupCondition == job.StartAt
}

// waitForNext decides how to wait for the nearest fixed-time job when
// nothing can run now.
func (e *Evaluator) waitForNext(sorted []*job.Job, now time.Time, cond Conditions) Decision {
	var next *job.Job
	best := 1_000_000
	for _, j := range sorted {
		if !isFixedScheduled(j) {
			continue
		}
		left := int(j.StartupTime.Sub(now).Seconds())
		if left > 0 && left < best {
			best = left
			next = j
		}
	}
	if next == nil {
		return Decision{Kind: None}
	}

	wake := time.Duration(best+1) * time.Second
	switch {
	case cond.StartupComplete && e.opts.PreemptiveShutdown &&
		best > int(e.opts.PreemptiveShutdownAfter.Seconds()):
		e.log.Infow("Observatory shutting down until next job is ready",
			logger.FieldJob, next.Name,
			logger.FieldStartAt, next.StartupTime,
			logger.FieldSleep, wake)
		return Decision{Kind: PreemptiveShutdown, Job: next, Wake: wake}

	case best > 1:
		if best > int(e.opts.LeadTime.Seconds()) && cond.StartupComplete && cond.ParkWaitIdle &&
			next.Steps.Has(job.UseTrack) && cond.ParkMount {
			e.log.Infow("Parking the mount until the job is ready",
				logger.FieldJob, next.Name,
				logger.FieldStartAt, next.StartupTime)
			return Decision{Kind: Park, Job: next}
		}
		e.log.Infow("Sleeping until observation job is ready",
			logger.FieldJob, next.Name,
			logger.FieldStartAt, next.StartupTime,
			logger.FieldSleep, wake)
		return Decision{Kind: Sleep, Job: next, Wake: wake}
	}
	return Decision{Kind: None, Job: next}
}

func (e *Evaluator) finish(counts Counts, total int, cond Conditions) Decision {
	if counts.Invalid == total {
		e.log.Infow("No valid jobs found, aborting")
		return Decision{Kind: Stop, Counts: counts}
	}
	e.log.Infow("No runnable jobs left",
		"invalid", counts.Invalid,
		"aborted", counts.Aborted,
		"completed", counts.Completed)
	if cond.StartupComplete {
		e.log.Infow("Scheduler complete, starting shutdown procedure")
		return Decision{Kind: Shutdown, Counts: counts}
	}
	return Decision{Kind: Stop, Counts: counts}
}

func countStates(jobs []*job.Job) Counts {
	var c Counts
	for _, j := range jobs {
		switch j.State() {
		case job.StateInvalid:
			c.Invalid++
		case job.StateError, job.StateAborted:
			c.Aborted++
		case job.StateComplete:
			c.Completed++
		case job.StateScheduled, job.StateBusy:
			c.Upcoming++
		}
	}
	return c
}
