package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Run is one training run.
type Run struct {
	ID                   string
	Learner              string
	Status               string
	Matches              int
	Features             int
	Iterations           int
	InitialLogLikelihood float64
	FinalLogLikelihood   float64
	ModelPath            string
	Error                string
	StartedAt            time.Time
	FinishedAt           *time.Time
}

// Pass is the persisted summary of one training pass.
type Pass struct {
	Pass          int
	LogLikelihood float64
	Accepted      int
	Rejected      int
	Duration      time.Duration
}

// RunRepository records training runs and their passes.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a run repository on an open connection.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a running training run and returns it with a fresh id.
func (r *RunRepository) Start(ctx context.Context, learner string, matches, features int) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Learner:   learner,
		Status:    RunRunning,
		Matches:   matches,
		Features:  features,
		StartedAt: time.UnixMilli(unixMillis(time.Now())).UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_runs (id, learner, status, matches, features, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Learner, run.Status, run.Matches, run.Features, unixMillis(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert training run: %w", err)
	}
	return run, nil
}

// AddPass records one completed pass of run id.
func (r *RunRepository) AddPass(ctx context.Context, id string, p Pass) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_passes (run_id, pass, log_likelihood, accepted, rejected, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, p.Pass, p.LogLikelihood, p.Accepted, p.Rejected, float64(p.Duration.Microseconds())/1000)
	if err != nil {
		return fmt.Errorf("failed to insert pass %d of run %s: %w", p.Pass, id, err)
	}
	return nil
}

// Finish marks run id finished with its outcome.
func (r *RunRepository) Finish(ctx context.Context, id string, iterations int, initial, final float64, modelPath string) error {
	return r.complete(ctx, id, RunFinished, iterations, initial, final, modelPath, "")
}

// Fail marks run id failed with the error that stopped it.
func (r *RunRepository) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.complete(ctx, id, RunFailed, 0, 0, 0, "", msg)
}

func (r *RunRepository) complete(ctx context.Context, id, status string, iterations int, initial, final float64, modelPath, msg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE training_runs
		SET status = ?, iterations = ?, initial_log_likelihood = ?, final_log_likelihood = ?,
		    model_path = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, iterations, initial, final, modelPath, msg, unixMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update training run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update training run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, learner, status, matches, features, iterations,
	initial_log_likelihood, final_log_likelihood, model_path, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.Learner, &run.Status, &run.Matches, &run.Features, &run.Iterations,
		&run.InitialLogLikelihood, &run.FinalLogLikelihood, &run.ModelPath, &run.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	run.StartedAt = fromMillis(started)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

// Get returns run id, or ErrNotFound.
func (r *RunRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first. A limit of 0 returns all.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Passes returns the recorded passes of run id in order.
func (r *RunRepository) Passes(ctx context.Context, id string) ([]Pass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pass, log_likelihood, accepted, rejected, duration_ms
		FROM training_passes
		WHERE run_id = ?
		ORDER BY pass
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes of run %s: %w", id, err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		var (
			p  Pass
			ms float64
		)
		if err := rows.Scan(&p.Pass, &p.LogLikelihood, &p.Accepted, &p.Rejected, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		p.Duration = time.Duration(ms * float64(time.Millisecond))
		passes = append(passes, p)
	}
	return passes, rows.Err()
}
