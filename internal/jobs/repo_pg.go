package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `
id, comparison_id, requester_id, title, model_name, status, retry_count,
result_payload, error_code, error_message, created_at, started_at,
completed_at, lease_expiry, updated_at`

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job AnalysisJob) error {
	const query = `
INSERT INTO analysis_jobs (
	id, comparison_id, requester_id, title, model_name, status, retry_count, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.ComparisonID,
		job.RequesterID,
		job.Title,
		job.ModelName,
		job.Status,
		job.RetryCount,
		job.CreatedAt,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1 LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, jobID))
}

// ListByRequester returns jobs for a requester ordered newest-first.
func (r *PGRepo) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]AnalysisJob, error) {
	query := `SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE requester_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisJob
	for rows.Next() {
		job, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// GetOrCreateForComparison creates the job unless an active one exists.
func (r *PGRepo) GetOrCreateForComparison(ctx context.Context, job AnalysisJob) (AnalysisJob, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return AnalysisJob{}, false, err
	}
	defer tx.Rollback()

	// Serialize per-comparison to avoid duplicate active jobs.
	if _, err := tx.ExecContext(ctx, `SELECT id FROM comparisons WHERE id = $1 FOR UPDATE`, job.ComparisonID); err != nil {
		return AnalysisJob{}, false, err
	}

	activeQuery := `SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE comparison_id = $1 AND status IN ('pending', 'processing')
LIMIT 1`
	active, err := r.scanOne(tx.QueryRowContext(ctx, activeQuery, job.ComparisonID))
	if err == nil {
		if err := tx.Commit(); err != nil {
			return AnalysisJob{}, false, err
		}
		return active, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return AnalysisJob{}, false, err
	}

	const insert = `
INSERT INTO analysis_jobs (
	id, comparison_id, requester_id, title, model_name, status, retry_count, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insert,
		job.ID,
		job.ComparisonID,
		job.RequesterID,
		job.Title,
		job.ModelName,
		job.Status,
		job.RetryCount,
		job.CreatedAt,
		job.CreatedAt,
	); err != nil {
		return AnalysisJob{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return AnalysisJob{}, false, err
	}
	return job, true, nil
}

// Claim transitions pending -> processing via compare-and-set.
func (r *PGRepo) Claim(ctx context.Context, jobID string, startedAt, leaseExpiry time.Time) (bool, error) {
	const query = `
UPDATE analysis_jobs
SET status = 'processing', started_at = $2, lease_expiry = $3, updated_at = $2
WHERE id = $1 AND status = 'pending'`
	return r.execCAS(ctx, query, jobID, startedAt, leaseExpiry)
}

// Complete transitions processing -> completed while the lease is valid.
func (r *PGRepo) Complete(ctx context.Context, jobID string, result map[string]any, completedAt time.Time) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	const query = `
UPDATE analysis_jobs
SET status = 'completed', result_payload = $2, completed_at = $3, updated_at = $3
WHERE id = $1 AND status = 'processing' AND lease_expiry > $3`
	return r.execCAS(ctx, query, jobID, payload, completedAt)
}

// Fail transitions processing -> error while the lease is valid and returns
// the updated retry count.
func (r *PGRepo) Fail(ctx context.Context, jobID, code, message string, completedAt time.Time, countRetry bool) (int, bool, error) {
	increment := 0
	if countRetry {
		increment = 1
	}
	const query = `
UPDATE analysis_jobs
SET status = 'error', error_code = $2, error_message = $3,
    retry_count = retry_count + $4, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'processing' AND lease_expiry > $5
RETURNING retry_count`
	return r.failRow(ctx, query, jobID, code, message, increment, completedAt)
}

// Reclaim transitions processing -> error only when the lease has expired.
func (r *PGRepo) Reclaim(ctx context.Context, jobID, code, message string, now time.Time) (int, bool, error) {
	const query = `
UPDATE analysis_jobs
SET status = 'error', error_code = $2, error_message = $3,
    retry_count = retry_count + $4, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'processing' AND lease_expiry <= $5
RETURNING retry_count`
	return r.failRow(ctx, query, jobID, code, message, 1, now)
}

func (r *PGRepo) failRow(ctx context.Context, query, jobID, code, message string, increment int, at time.Time) (int, bool, error) {
	var retryCount int
	err := r.DB.QueryRowContext(ctx, query, jobID, code, message, increment, at).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return retryCount, true, nil
}

// MarkEnqueueFailed transitions pending -> error with ENQUEUE_FAILURE.
func (r *PGRepo) MarkEnqueueFailed(ctx context.Context, jobID, message string) error {
	now := time.Now().UTC()
	const query = `
UPDATE analysis_jobs
SET status = 'error', error_code = $2, error_message = $3, completed_at = $4, updated_at = $4
WHERE id = $1 AND status = 'pending'`
	_, err := r.DB.ExecContext(ctx, query, jobID, ReasonEnqueue, message, now)
	return err
}

// Requeue transitions error -> pending for a retry re-enqueue.
func (r *PGRepo) Requeue(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().UTC()
	const query = `
UPDATE analysis_jobs
SET status = 'pending', error_code = NULL, error_message = NULL,
    completed_at = NULL, lease_expiry = NULL, updated_at = $2
WHERE id = $1 AND status = 'error'`
	return r.execCAS(ctx, query, jobID, now)
}

// ExpiredLeases returns processing jobs whose lease expired before now.
func (r *PGRepo) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]AnalysisJob, error) {
	query := `SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE status = 'processing' AND lease_expiry <= $1
ORDER BY lease_expiry
LIMIT $2`
	return r.queryJobs(ctx, query, now, limit)
}

// StalePending returns pending jobs untouched since the cutoff.
func (r *PGRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]AnalysisJob, error) {
	query := `SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE status = 'pending' AND updated_at <= $1
ORDER BY updated_at
LIMIT $2`
	return r.queryJobs(ctx, query, cutoff, limit)
}

// TouchPending refreshes updatedAt on a still-pending job.
func (r *PGRepo) TouchPending(ctx context.Context, jobID string, now time.Time) (bool, error) {
	const query = `
UPDATE analysis_jobs
SET updated_at = $2
WHERE id = $1 AND status = 'pending'`
	return r.execCAS(ctx, query, jobID, now)
}

func (r *PGRepo) execCAS(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PGRepo) queryJobs(ctx context.Context, query string, args ...any) ([]AnalysisJob, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisJob
	for rows.Next() {
		job, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PGRepo) scanOne(row rowScanner) (AnalysisJob, error) {
	var j AnalysisJob
	var result sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var leaseExpiry sql.NullTime
	err := row.Scan(
		&j.ID,
		&j.ComparisonID,
		&j.RequesterID,
		&j.Title,
		&j.ModelName,
		&j.Status,
		&j.RetryCount,
		&result,
		&errorCode,
		&errorMessage,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
		&leaseExpiry,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisJob{}, ErrNotFound
		}
		return AnalysisJob{}, err
	}
	if result.Valid {
		j.ResultPayload = map[string]any{}
		if err := json.Unmarshal([]byte(result.String), &j.ResultPayload); err != nil {
			j.ResultPayload = nil
		}
	}
	if errorCode.Valid {
		j.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		j.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if leaseExpiry.Valid {
		j.LeaseExpiry = &leaseExpiry.Time
	}
	return j, nil
}

var _ Repo = (*PGRepo)(nil)
