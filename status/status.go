// Package status keeps a YAML snapshot of the scheduler on disk so that
// external tools can follow a run without talking to the process.
package status

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/job"
)

// Snapshot is the file content.
type Snapshot struct {
	UpdatedAt time.Time   `yaml:"updated_at"`
	Run       RunStatus   `yaml:"run"`
	Jobs      []JobStatus `yaml:"jobs"`
}

// RunStatus describes the current or last run.
type RunStatus struct {
	ID        string    `yaml:"id,omitempty"`
	Schedule  string    `yaml:"schedule,omitempty"`
	Active    bool      `yaml:"active"`
	StartedAt time.Time `yaml:"started_at,omitempty"`
	EndedAt   time.Time `yaml:"ended_at,omitempty"`
	Outcome   string    `yaml:"outcome,omitempty"`
}

// JobStatus is the last known state of one job.
type JobStatus struct {
	Name  string `yaml:"name"`
	State string `yaml:"state"`
	Stage string `yaml:"stage"`
	Score int16  `yaml:"score"`
}

// Writer rewrites the snapshot file on every change it observes. It keeps
// its own copy of job state and never calls back into the scheduler.
type Writer struct {
	path string
	log  *zap.SugaredLogger
	now  func() time.Time

	mu    sync.Mutex
	run   RunStatus
	order []*job.Job
	jobs  map[*job.Job]JobStatus
}

// NewWriter creates a writer for path.
func NewWriter(path string, log *zap.SugaredLogger) *Writer {
	return &Writer{
		path: path,
		log:  log,
		now:  time.Now,
		jobs: make(map[*job.Job]JobStatus),
	}
}

func (w *Writer) RunStarted(id, schedule string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run = RunStatus{ID: id, Schedule: schedule, Active: true, StartedAt: at}
	// jobs of an earlier schedule are dropped; the first evaluation reports
	// every job of this one
	w.order = nil
	w.jobs = make(map[*job.Job]JobStatus)
	w.flush()
}

func (w *Writer) RunStopped(id string, at time.Time, outcome string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run.Active = false
	w.run.EndedAt = at
	w.run.Outcome = outcome
	w.flush()
}

func (w *Writer) JobStateChanged(j *job.Job, from, to job.State) { w.update(j) }

func (w *Writer) JobStageChanged(j *job.Job, from, to job.Stage) { w.update(j) }

func (w *Writer) JobScoreChanged(j *job.Job, score int16) { w.update(j) }

func (w *Writer) update(j *job.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.jobs[j]; !ok {
		w.order = append(w.order, j)
	}
	w.jobs[j] = JobStatus{
		Name:  j.Name,
		State: j.State().String(),
		Stage: j.Stage().String(),
		Score: j.Score(),
	}
	w.flush()
}

// Snapshot returns what the file currently holds.
func (w *Writer) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Writer) snapshot() Snapshot {
	s := Snapshot{UpdatedAt: w.now(), Run: w.run, Jobs: make([]JobStatus, 0, len(w.order))}
	for _, j := range w.order {
		s.Jobs = append(s.Jobs, w.jobs[j])
	}
	return s
}

func (w *Writer) flush() {
	if err := WriteFile(w.path, w.snapshot()); err != nil {
		w.log.Warnw("Failed to write status file", logger.FieldFile, w.path, logger.FieldError, err)
	}
}

// WriteFile atomically replaces path with s.
func WriteFile(path string, s Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "yaml marshal")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nightshift-status-*.yaml")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "atomic rename")
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, errors.NewNotFoundError("status file %s", path)
	}
	if err != nil {
		return s, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.Wrapf(err, "parse %s", path)
	}
	return s, nil
}
