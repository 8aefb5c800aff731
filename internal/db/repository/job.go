package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"tablelens/internal/domain"
)

// Compile-time check.
var _ domain.JobRepository = (*JobRepo)(nil)

// JobRepo persists background job status in SQLite. Writes go through the
// single-connection write pool; reads use the read pool.
type JobRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewJobRepo creates a JobRepo over the write and read pools.
func NewJobRepo(write, read *sql.DB) *JobRepo {
	return &JobRepo{write: write, read: read}
}

// Create inserts a new job row.
func (r *JobRepo) Create(ctx context.Context, job *domain.JobStatus) error {
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, kind, state, phase, completed, total, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, '', ?, ?)`,
		job.ID, string(job.Kind), string(job.State),
		job.Progress.Phase, job.Progress.Completed, job.Progress.Total,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	return mapDBError(err)
}

// Get returns one job by ID.
func (r *JobRepo) Get(ctx context.Context, id string) (*domain.JobStatus, error) {
	row := r.read.QueryRowContext(ctx, `
		SELECT id, kind, state, phase, completed, total, result, error, created_at, updated_at
		FROM analysis_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns every job, newest first.
func (r *JobRepo) List(ctx context.Context) ([]domain.JobStatus, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT id, kind, state, phase, completed, total, result, error, created_at, updated_at
		FROM analysis_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var jobs []domain.JobStatus
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateProgress advances a non-terminal job. Touching a terminal job
// returns a ConflictError; an unknown ID returns a NotFoundError.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, state domain.JobState, p domain.Progress) error {
	res, err := r.write.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET state = ?, phase = ?, completed = ?, total = ?, updated_at = ?
		WHERE id = ? AND state IN ('pending', 'running')`,
		string(state), p.Phase, p.Completed, p.Total, time.Now().UTC(), id,
	)
	if err != nil {
		return mapDBError(err)
	}
	return r.checkAffected(ctx, res, id)
}

// Finish moves a job into a terminal state with its result payload. Jobs
// already terminal are left untouched and reported as a conflict.
func (r *JobRepo) Finish(ctx context.Context, id string, state domain.JobState, result json.RawMessage, errText string) error {
	if !state.Terminal() {
		return domain.ErrValidation("finish requires a terminal state, got %q", state)
	}

	var resultVal interface{}
	if len(result) > 0 {
		resultVal = string(result)
	}
	res, err := r.write.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET state = ?, result = ?, error = ?, updated_at = ?
		WHERE id = ? AND state IN ('pending', 'running')`,
		string(state), resultVal, errText, time.Now().UTC(), id,
	)
	if err != nil {
		return mapDBError(err)
	}
	return r.checkAffected(ctx, res, id)
}

// checkAffected distinguishes a missing job from a terminal one after a
// guarded update matched no rows.
func (r *JobRepo) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrConflict("job %s is in a terminal state", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.JobStatus, error) {
	var (
		job    domain.JobStatus
		kind   string
		state  string
		result sql.NullString
	)
	err := row.Scan(&job.ID, &kind, &state,
		&job.Progress.Phase, &job.Progress.Completed, &job.Progress.Total,
		&result, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	job.Kind = domain.JobKind(kind)
	job.State = domain.JobState(state)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	return &job, nil
}
