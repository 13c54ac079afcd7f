package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ErrRunNotFound is returned when the registry has no such run
var ErrRunNotFound = errors.New("generation run not found")

// RunStep is one step of a generation run
type RunStep struct {
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *string `json:"error,omitempty"`
}

// RunRecord is a row of the generation_runs registry
type RunRecord struct {
	RunID      string          `json:"run_id"`
	DatasetID  string          `json:"dataset_id"`
	Seed       uint64          `json:"seed"`
	Status     string          `json:"status"`
	FailedStep *string         `json:"failed_step,omitempty"`
	OutputDir  string          `json:"output_dir"`
	Params     json.RawMessage `json:"params"`
	RowCounts  map[string]int  `json:"row_counts,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Steps      []RunStep       `json:"steps,omitempty"`
}

// RunRepository handles the generation run registry
type RunRepository struct {
	db *PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

// Start registers a run in the running state
func (r *RunRepository) Start(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO generation_runs (
			run_id, dataset_id, seed, status, output_dir, params, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		run.RunID,
		run.DatasetID,
		int64(run.Seed), // #nosec G115 - stored bit-for-bit in a BIGINT
		RunStatusRunning,
		run.OutputDir,
		run.Params,
		run.StartedAt,
	)
	if err != nil {
		return apperrors.NewStorageError("register run", err)
	}

	return nil
}

// Finish records the final status, row counts and steps of a run
func (r *RunRepository) Finish(ctx context.Context, run *RunRecord) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewStorageError("begin run update", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	query := `
		UPDATE generation_runs
		SET status = $2, failed_step = $3, row_counts = $4, ended_at = $5
		WHERE run_id = $1
	`

	result, err := tx.Exec(ctx, query,
		run.RunID,
		run.Status,
		run.FailedStep,
		run.RowCounts,
		run.EndedAt,
	)
	if err != nil {
		return apperrors.NewStorageError("update run", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.RunID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM generation_run_steps WHERE run_id = $1`, run.RunID); err != nil {
		return apperrors.NewStorageError("clear run steps", err)
	}

	rows := make([][]any, len(run.Steps))
	for i, s := range run.Steps {
		rows[i] = []any{run.RunID, int32(i + 1), s.Name, s.Status, s.DurationSeconds, s.Error} // #nosec G115 - a run has a handful of steps
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"generation_run_steps"},
		[]string{"run_id", "position", "name", "status", "duration_seconds", "error"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return apperrors.NewStorageError("insert run steps", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewStorageError("commit run update", err)
	}
	return nil
}

// GetByID retrieves a run and its steps
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, dataset_id::text, seed, status, failed_step, output_dir,
			   params, row_counts, started_at, ended_at
		FROM generation_runs
		WHERE run_id = $1
	`
	run, err := r.scanRun(r.db.Pool().QueryRow(ctx, query, runID))
	if err != nil {
		return nil, err
	}

	steps, err := r.steps(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Steps = steps
	return run, nil
}

// LatestSuccessful returns the most recently started successful run
func (r *RunRepository) LatestSuccessful(ctx context.Context) (*RunRecord, error) {
	query := `
		SELECT run_id, dataset_id::text, seed, status, failed_step, output_dir,
			   params, row_counts, started_at, ended_at
		FROM generation_runs
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
	return r.scanRun(r.db.Pool().QueryRow(ctx, query, RunStatusSuccess))
}

func (r *RunRepository) scanRun(row pgx.Row) (*RunRecord, error) {
	var run RunRecord
	var seed int64

	err := row.Scan(
		&run.RunID,
		&run.DatasetID,
		&seed,
		&run.Status,
		&run.FailedStep,
		&run.OutputDir,
		&run.Params,
		&run.RowCounts,
		&run.StartedAt,
		&run.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, apperrors.NewStorageError("read run", err)
	}

	run.Seed = uint64(seed) // #nosec G115 - stored bit-for-bit in a BIGINT
	return &run, nil
}

func (r *RunRepository) steps(ctx context.Context, runID string) ([]RunStep, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT name, status, duration_seconds, error
		FROM generation_run_steps
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, apperrors.NewStorageError("read run steps", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		var s RunStep
		if err := rows.Scan(&s.Name, &s.Status, &s.DurationSeconds, &s.Error); err != nil {
			return nil, apperrors.NewStorageError("scan run step", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("read run steps", err)
	}
	return steps, nil
}
