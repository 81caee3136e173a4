package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/nightshift/db"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/job"
)

// Recorder writes scheduler runs and job changes to a Store. Changes seen
// outside a run are not recorded. Write failures are logged and never
// reach the scheduler; writes after the store was closed are dropped.
type Recorder struct {
	store *Store
	log   *zap.SugaredLogger
	now   func() time.Time

	mu    sync.Mutex
	runID string
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, log *zap.SugaredLogger) *Recorder {
	return &Recorder{
		store: store,
		log:   logger.AddDBSymbol(log),
		now:   time.Now,
	}
}

// RunStarted opens a run record.
func (r *Recorder) RunStarted(id, schedule string, at time.Time) {
	r.mu.Lock()
	r.runID = id
	r.mu.Unlock()

	if err := r.store.CreateRun(context.Background(), &Run{ID: id, SchedulePath: schedule, StartedAt: at}); err != nil {
		r.log.Errorw("Failed to record run start", logger.FieldRunID, id, logger.FieldError, err)
	}
}

// RunStopped closes the run record.
func (r *Recorder) RunStopped(id string, at time.Time, outcome string) {
	r.mu.Lock()
	if r.runID == id {
		r.runID = ""
	}
	r.mu.Unlock()

	if err := r.store.FinishRun(context.Background(), id, at, outcome); err != nil {
		if db.IsDatabaseClosed(err) {
			r.log.Debugw("Dropping run end, history store closed", logger.FieldRunID, id)
			return
		}
		r.log.Errorw("Failed to record run end", logger.FieldRunID, id, logger.FieldError, err)
	}
}

func (r *Recorder) JobStateChanged(j *job.Job, from, to job.State) {
	r.record(j, KindState, j.Score(), from.String()+" -> "+to.String())
}

func (r *Recorder) JobStageChanged(j *job.Job, from, to job.Stage) {
	r.record(j, KindStage, j.Score(), from.String()+" -> "+to.String())
}

func (r *Recorder) JobScoreChanged(j *job.Job, score int16) {
	r.record(j, KindScore, score, "")
}

func (r *Recorder) record(j *job.Job, kind string, score int16, message string) {
	r.mu.Lock()
	runID := r.runID
	r.mu.Unlock()
	if runID == "" {
		return
	}

	e := &Event{
		ID:        uuid.NewString(),
		RunID:     runID,
		JobName:   j.Name,
		Kind:      kind,
		State:     j.State().String(),
		Stage:     j.Stage().String(),
		Score:     score,
		Message:   message,
		CreatedAt: r.now(),
	}
	if err := r.store.AddEvent(context.Background(), e); err != nil {
		if db.IsDatabaseClosed(err) {
			r.log.Debugw("Dropping job event, history store closed",
				logger.FieldRunID, runID,
				logger.FieldJob, j.Name)
			return
		}
		r.log.Warnw("Failed to record job event",
			logger.FieldRunID, runID,
			logger.FieldJob, j.Name,
			logger.FieldError, err)
	}
}
