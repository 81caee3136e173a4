package job

import (
	"sort"

	"github.com/teranos/nightshift/errors"
)

// Queue owns every job of a schedule.
type Queue struct {
	jobs     []*Job
	observer Observer
}

// NewQueue creates an empty queue whose jobs report to obs (may be nil).
func NewQueue(obs Observer) *Queue {
	return &Queue{observer: obs}
}

// Add appends a job. Names must be unique.
func (q *Queue) Add(j *Job) error {
	if q.Find(j.Name) != nil {
		return errors.Wrapf(errors.ErrConflict, "job %q already queued", j.Name)
	}
	j.Observe(q.observer)
	q.jobs = append(q.jobs, j)
	return nil
}

// Remove deletes the named job.
func (q *Queue) Remove(name string) error {
	for i, j := range q.jobs {
		if j.Name == name {
			j.Observe(nil)
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("job %q", name)
}

// Find returns the named job or nil.
func (q *Queue) Find(name string) *Job {
	for _, j := range q.jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Jobs returns the jobs in insertion order. The slice is a copy; the jobs are not.
func (q *Queue) Jobs() []*Job {
	return append([]*Job(nil), q.jobs...)
}

// Len returns the number of jobs.
func (q *Queue) Len() int { return len(q.jobs) }

// Busy returns the running job or nil.
func (q *Queue) Busy() *Job {
	for _, j := range q.jobs {
		if j.State() == StateBusy {
			return j
		}
	}
	return nil
}

// Count returns how many jobs are in state s.
func (q *Queue) Count(s State) int {
	n := 0
	for _, j := range q.jobs {
		if j.State() == s {
			n++
		}
	}
	return n
}

// ResetAll returns every job to Idle.
func (q *Queue) ResetAll() {
	for _, j := range q.jobs {
		j.Reset()
	}
}

// SetObserver replaces the observer on the queue and every job.
func (q *Queue) SetObserver(o Observer) {
	q.observer = o
	for _, j := range q.jobs {
		j.Observe(o)
	}
}

// SortByAltitude orders jobs by ascending priority and, within a priority,
// by descending altitude at the time of evaluation. Priority always wins, so
// a low urgent target still comes before a high routine one. Jobs with equal
// priority and altitude keep their schedule order. altitude is called once
// per job.
func SortByAltitude(jobs []*Job, altitude func(*Job) float64) {
	alt := make(map[*Job]float64, len(jobs))
	for _, j := range jobs {
		alt[j] = altitude(j)
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].Priority != jobs[b].Priority {
			return jobs[a].Priority < jobs[b].Priority
		}
		return alt[jobs[a]] > alt[jobs[b]]
	})
}

// SortByScore orders jobs by ascending priority, then by descending score.
// Equal keys keep their relative order.
func SortByScore(jobs []*Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].Priority != jobs[b].Priority {
			return jobs[a].Priority < jobs[b].Priority
		}
		return jobs[a].Score() > jobs[b].Score()
	})
}
