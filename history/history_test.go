package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/nightshift/errors"
	nstest "github.com/teranos/nightshift/internal/testing"
	"github.com/teranos/nightshift/scheduler/job"
)

var t0 = time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)

func TestRunLifecycle(t *testing.T) {
	s := NewStore(nstest.CreateMigratedTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &Run{ID: "run-1", SchedulePath: "night.esl", StartedAt: t0}))
	r, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "night.esl", r.SchedulePath)
	assert.True(t, r.StartedAt.Equal(t0))
	assert.True(t, r.EndedAt.IsZero())
	assert.Empty(t, r.Outcome)

	require.NoError(t, s.FinishRun(ctx, "run-1", t0.Add(time.Hour), "complete"))
	r, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, r.EndedAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, "complete", r.Outcome)
}

func TestMissingRun(t *testing.T) {
	s := NewStore(nstest.CreateMigratedTestDB(t))
	ctx := context.Background()

	_, err := s.GetRun(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(s.FinishRun(ctx, "nope", t0, "stopped")))
}

func TestListRunsNewestFirst(t *testing.T) {
	s := NewStore(nstest.CreateMigratedTestDB(t))
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRun(ctx, &Run{ID: id, SchedulePath: "night.esl", StartedAt: t0.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEventNeedsRun(t *testing.T) {
	s := NewStore(nstest.CreateMigratedTestDB(t))
	err := s.AddEvent(context.Background(), &Event{ID: "e", RunID: "missing", JobName: "M 42", Kind: KindState, State: "BUSY", Stage: "IDLE", CreatedAt: t0})
	assert.Error(t, err)
}

func TestRecorderWritesRunAndEvents(t *testing.T) {
	s := NewStore(nstest.CreateMigratedTestDB(t))
	rec := NewRecorder(s, zaptest.NewLogger(t).Sugar())
	rec.now = func() time.Time { return t0 }

	j := job.New("M 42")
	j.Observe(rec)

	// changes before a run are not recorded
	j.SetState(job.StateEvaluation)

	rec.RunStarted("run-1", "night.esl", t0)
	j.SetScore(42)
	j.SetState(job.StateBusy)
	j.SetStage(job.StageSlewing)
	rec.RunStopped("run-1", t0.Add(time.Hour), "stopped")

	// nor after it
	j.SetState(job.StateAborted)

	events, err := s.ListEvents(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindScore, events[0].Kind)
	assert.Equal(t, int16(42), events[0].Score)
	assert.Equal(t, KindState, events[1].Kind)
	assert.Equal(t, "BUSY", events[1].State)
	assert.Equal(t, "EVALUATION -> BUSY", events[1].Message)
	assert.Equal(t, KindStage, events[2].Kind)
	assert.Equal(t, "SLEWING", events[2].Stage)
	assert.Equal(t, "M 42", events[2].JobName)

	r, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", r.Outcome)
}

func TestRecorderLogsWriteFailures(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	core, logs := observer.New(zap.WarnLevel)
	rec := NewRecorder(NewStore(conn), zap.New(core).Sugar())

	mock.ExpectExec(`INSERT INTO scheduler_runs`).
		WithArgs("run-1", "night.esl", t0.Format(time.RFC3339)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO job_events`).
		WillReturnError(errors.New("disk full"))

	rec.RunStarted("run-1", "night.esl", t0)
	j := job.New("M 42")
	j.Observe(rec)
	j.SetState(job.StateBusy)

	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 1, logs.FilterMessage("Failed to record job event").Len())
}

func TestRecorderDropsEventsAfterClose(t *testing.T) {
	conn := nstest.CreateMigratedTestDB(t)
	core, logs := observer.New(zap.DebugLevel)
	rec := NewRecorder(NewStore(conn), zap.New(core).Sugar())

	rec.RunStarted("run-1", "night.esl", t0)
	j := job.New("M 42")
	j.Observe(rec)
	require.NoError(t, conn.Close())

	j.SetState(job.StateBusy)
	rec.RunStopped("run-1", t0.Add(time.Hour), "stopped")

	assert.Equal(t, 1, logs.FilterMessage("Dropping job event, history store closed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Dropping run end, history store closed").Len())
	assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestFinishRunSQL(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(`UPDATE scheduler_runs SET ended_at = \?, outcome = \? WHERE id = \?`).
		WithArgs(t0.Format(time.RFC3339), "failed", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewStore(conn).FinishRun(context.Background(), "run-1", t0, "failed"))
	require.NoError(t, mock.ExpectationsWereMet())
}
