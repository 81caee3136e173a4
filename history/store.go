// Package history persists scheduler runs and the job transitions seen
// during each run.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/nightshift/errors"
)

// Event kinds.
const (
	KindState = "state"
	KindStage = "stage"
	KindScore = "score"
)

// Run is one scheduler run, from Start until it stops.
type Run struct {
	ID           string
	SchedulePath string
	StartedAt    time.Time
	EndedAt      time.Time // zero while the run is in progress
	Outcome      string
}

// Event is a job change recorded during a run.
type Event struct {
	ID        string
	RunID     string
	JobName   string
	Kind      string
	State     string
	Stage     string
	Score     int16
	Message   string
	CreatedAt time.Time
}

// Store handles persistence of runs and job events
type Store struct {
	db *sql.DB
}

// NewStore creates a store on a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduler_runs (id, schedule_path, started_at) VALUES (?, ?, ?)`,
		r.ID, r.SchedulePath, formatTime(r.StartedAt))
	if err != nil {
		return errors.Wrapf(err, "failed to create run %s", r.ID)
	}
	return nil
}

// FinishRun records the end of a run.
func (s *Store) FinishRun(ctx context.Context, id string, at time.Time, outcome string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_runs SET ended_at = ?, outcome = ? WHERE id = ?`,
		formatTime(at), outcome, id)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("run %s", id)
	}
	return nil
}

const runColumns = `id, schedule_path, started_at, ended_at, outcome`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		r       Run
		started string
		ended   sql.NullString
		outcome sql.NullString
	)
	if err := row.Scan(&r.ID, &r.SchedulePath, &started, &ended, &outcome); err != nil {
		return nil, err
	}
	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, errors.Wrapf(err, "run %s started_at", r.ID)
	}
	if ended.Valid {
		if r.EndedAt, err = parseTime(ended.String); err != nil {
			return nil, errors.Wrapf(err, "run %s ended_at", r.ID)
		}
	}
	r.Outcome = outcome.String
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scheduler_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM scheduler_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *r)
	}
	return runs, errors.Wrap(rows.Err(), "failed to list runs")
}

// AddEvent inserts a job event. The run must exist.
func (s *Store) AddEvent(ctx context.Context, e *Event) error {
	message := sql.NullString{String: e.Message, Valid: e.Message != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_events (
			id, run_id, job_name, kind, state, stage, score, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.JobName, e.Kind, e.State, e.Stage, e.Score, message, formatTime(e.CreatedAt))
	if err != nil {
		return errors.Wrapf(err, "failed to add %s event for %s", e.Kind, e.JobName)
	}
	return nil
}

// ListEvents returns the events of a run in the order they were recorded.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, job_name, kind, state, stage, score, message, created_at
		FROM job_events WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			message sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.JobName, &e.Kind, &e.State, &e.Stage, &e.Score, &message, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		e.Message = message.String
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, errors.Wrapf(err, "event %s created_at", e.ID)
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "failed to list events")
}
