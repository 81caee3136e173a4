package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/scheduler/job"
)

var t0 = time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)

func TestWriterTracksRunAndJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.yaml")
	w := NewWriter(path, zaptest.NewLogger(t).Sugar())
	w.now = func() time.Time { return t0 }

	m42, darks := job.New("M 42"), job.New("Darks")
	m42.Observe(w)
	darks.Observe(w)

	w.RunStarted("run-1", "night.esl", t0)
	m42.SetState(job.StateScheduled)
	darks.SetState(job.StateScheduled)
	m42.SetScore(12)
	m42.SetState(job.StateBusy)
	m42.SetStage(job.StageCapturing)

	s, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, s.Run.Active)
	assert.Equal(t, "run-1", s.Run.ID)
	assert.Equal(t, "night.esl", s.Run.Schedule)
	require.Len(t, s.Jobs, 2)
	assert.Equal(t, JobStatus{Name: "M 42", State: "BUSY", Stage: "CAPTURING", Score: 12}, s.Jobs[0])
	assert.Equal(t, "Darks", s.Jobs[1].Name)

	w.RunStopped("run-1", t0.Add(time.Hour), "stopped")
	s, err = ReadFile(path)
	require.NoError(t, err)
	assert.False(t, s.Run.Active)
	assert.Equal(t, "stopped", s.Run.Outcome)
	assert.True(t, s.Run.EndedAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, w.Snapshot().Jobs, s.Jobs)
}

func TestNewRunDropsOldJobs(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "status.yaml"), zap.NewNop().Sugar())
	old := job.New("old")
	old.Observe(w)
	old.SetState(job.StateComplete)
	require.Len(t, w.Snapshot().Jobs, 1)

	w.RunStarted("run-2", "other.esl", t0)
	assert.Empty(t, w.Snapshot().Jobs)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.yaml")
	require.NoError(t, WriteFile(path, Snapshot{UpdatedAt: t0}))
	require.NoError(t, WriteFile(path, Snapshot{UpdatedAt: t0.Add(time.Second)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "status.yaml", entries[0].Name())
}

func TestWriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := NewWriter(filepath.Join(t.TempDir(), "missing", "status.yaml"), zap.New(core).Sugar())

	w.RunStarted("run-1", "night.esl", t0)
	assert.Equal(t, 1, logs.FilterMessage("Failed to write status file").Len())
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsNotFoundError(err))
}
