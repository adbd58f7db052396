package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis jobs. All status writes
// are compare-and-set guarded transitions; there is no blind overwrite.
type Repo interface {
	Create(ctx context.Context, job AnalysisJob) error
	GetByID(ctx context.Context, jobID string) (AnalysisJob, error)
	ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]AnalysisJob, error)

	// GetOrCreateForComparison creates the job unless the comparison already
	// has an active (pending or processing) one, in which case the active job
	// is returned with created=false.
	GetOrCreateForComparison(ctx context.Context, job AnalysisJob) (AnalysisJob, bool, error)

	// Claim transitions pending -> processing, setting startedAt and
	// leaseExpiry. Returns false when the job is no longer pending.
	Claim(ctx context.Context, jobID string, startedAt, leaseExpiry time.Time) (bool, error)

	// Complete transitions processing -> completed. Only succeeds while the
	// lease is still valid; returns false otherwise.
	Complete(ctx context.Context, jobID string, result map[string]any, completedAt time.Time) (bool, error)

	// Fail transitions processing -> error with the given reason, increments
	// retryCount when countRetry is set, and returns the updated retry count.
	// Like Complete, it only succeeds while the lease is still valid; once
	// the lease expires the job belongs to the reclaim sweep.
	Fail(ctx context.Context, jobID, code, message string, completedAt time.Time, countRetry bool) (int, bool, error)

	// Reclaim transitions processing -> error for a job whose lease expired
	// at or before now, counting a retry. It refuses jobs holding a live
	// lease, so a sweep working from a stale snapshot cannot overwrite a
	// claim taken after the snapshot.
	Reclaim(ctx context.Context, jobID, code, message string, now time.Time) (int, bool, error)

	// MarkEnqueueFailed transitions pending -> error with ENQUEUE_FAILURE.
	MarkEnqueueFailed(ctx context.Context, jobID, message string) error

	// Requeue transitions error -> pending for a retry re-enqueue, clearing
	// the lease and error fields. Returns false when the job is not in error.
	Requeue(ctx context.Context, jobID string) (bool, error)

	// ExpiredLeases returns processing jobs whose lease expired before now.
	ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]AnalysisJob, error)

	// StalePending returns pending jobs untouched since the cutoff, i.e.
	// candidates for a lost enqueue.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]AnalysisJob, error)

	// TouchPending refreshes updatedAt on a still-pending job so the
	// reconciler does not re-publish it again next sweep.
	TouchPending(ctx context.Context, jobID string, now time.Time) (bool, error)
}
