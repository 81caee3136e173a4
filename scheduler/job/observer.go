package job

// Observer receives job changes. Calls happen on the control loop goroutine
// and must not block.
type Observer interface {
	JobStateChanged(j *Job, from, to State)
	JobStageChanged(j *Job, from, to Stage)
	JobScoreChanged(j *Job, score int16)
}

// Observers fans a change out to several observers in order.
type Observers []Observer

func (os Observers) JobStateChanged(j *Job, from, to State) {
	for _, o := range os {
		o.JobStateChanged(j, from, to)
	}
}

func (os Observers) JobStageChanged(j *Job, from, to Stage) {
	for _, o := range os {
		o.JobStageChanged(j, from, to)
	}
}

func (os Observers) JobScoreChanged(j *Job, score int16) {
	for _, o := range os {
		o.JobScoreChanged(j, score)
	}
}

// NopObserver ignores every change. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) JobStateChanged(*Job, State, State) {}
func (NopObserver) JobStageChanged(*Job, Stage, Stage) {}
func (NopObserver) JobScoreChanged(*Job, int16)        {}
