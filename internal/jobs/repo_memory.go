package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use. The same
// compare-and-set transition semantics as PGRepo apply.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]AnalysisJob
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]AnalysisJob)}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job AnalysisJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job.UpdatedAt = job.CreatedAt
	r.byID[job.ID] = job
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisJob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return AnalysisJob{}, ErrNotFound
	}
	return job, nil
}

// ListByRequester returns jobs for a requester ordered newest-first.
func (r *MemoryRepo) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AnalysisJob
	for _, job := range r.byID {
		if job.RequesterID == requesterID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// GetOrCreateForComparison creates the job unless an active one exists.
func (r *MemoryRepo) GetOrCreateForComparison(ctx context.Context, job AnalysisJob) (AnalysisJob, bool, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisJob{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ComparisonID == job.ComparisonID && existing.Active() {
			return existing, false, nil
		}
	}
	job.UpdatedAt = job.CreatedAt
	r.byID[job.ID] = job
	return job, true, nil
}

// Claim transitions pending -> processing via compare-and-set.
func (r *MemoryRepo) Claim(ctx context.Context, jobID string, startedAt, leaseExpiry time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusPending {
		return false, nil
	}
	job.Status = StatusProcessing
	job.StartedAt = &startedAt
	job.LeaseExpiry = &leaseExpiry
	job.UpdatedAt = startedAt
	r.byID[jobID] = job
	return true, nil
}

// Complete transitions processing -> completed while the lease is valid.
func (r *MemoryRepo) Complete(ctx context.Context, jobID string, result map[string]any, completedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusProcessing {
		return false, nil
	}
	if job.LeaseExpiry == nil || !job.LeaseExpiry.After(completedAt) {
		return false, nil
	}
	job.Status = StatusCompleted
	job.ResultPayload = result
	job.CompletedAt = &completedAt
	job.UpdatedAt = completedAt
	r.byID[jobID] = job
	return true, nil
}

// Fail transitions processing -> error while the lease is valid and returns
// the updated retry count.
func (r *MemoryRepo) Fail(ctx context.Context, jobID, code, message string, completedAt time.Time, countRetry bool) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusProcessing {
		return 0, false, nil
	}
	if job.LeaseExpiry == nil || !job.LeaseExpiry.After(completedAt) {
		return 0, false, nil
	}
	job.Status = StatusError
	job.ErrorCode = code
	job.ErrorMessage = message
	if countRetry {
		job.RetryCount++
	}
	job.CompletedAt = &completedAt
	job.UpdatedAt = completedAt
	r.byID[jobID] = job
	return job.RetryCount, true, nil
}

// Reclaim transitions processing -> error only when the lease has expired.
func (r *MemoryRepo) Reclaim(ctx context.Context, jobID, code, message string, now time.Time) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusProcessing {
		return 0, false, nil
	}
	if job.LeaseExpiry == nil || job.LeaseExpiry.After(now) {
		return 0, false, nil
	}
	job.Status = StatusError
	job.ErrorCode = code
	job.ErrorMessage = message
	job.RetryCount++
	job.CompletedAt = &now
	job.UpdatedAt = now
	r.byID[jobID] = job
	return job.RetryCount, true, nil
}

// MarkEnqueueFailed transitions pending -> error with ENQUEUE_FAILURE.
func (r *MemoryRepo) MarkEnqueueFailed(ctx context.Context, jobID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusPending {
		return nil
	}
	now := time.Now().UTC()
	job.Status = StatusError
	job.ErrorCode = ReasonEnqueue
	job.ErrorMessage = message
	job.CompletedAt = &now
	job.UpdatedAt = now
	r.byID[jobID] = job
	return nil
}

// Requeue transitions error -> pending for a retry re-enqueue.
func (r *MemoryRepo) Requeue(ctx context.Context, jobID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusError {
		return false, nil
	}
	job.Status = StatusPending
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.LeaseExpiry = nil
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return true, nil
}

// ExpiredLeases returns processing jobs whose lease expired before now.
func (r *MemoryRepo) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AnalysisJob
	for _, job := range r.byID {
		if job.Status == StatusProcessing && job.LeaseExpiry != nil && !job.LeaseExpiry.After(now) {
			out = append(out, job)
		}
	}
	sortByUpdated(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// StalePending returns pending jobs untouched since the cutoff.
func (r *MemoryRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AnalysisJob
	for _, job := range r.byID {
		if job.Status == StatusPending && !job.UpdatedAt.After(cutoff) {
			out = append(out, job)
		}
	}
	sortByUpdated(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// TouchPending refreshes updatedAt on a still-pending job.
func (r *MemoryRepo) TouchPending(ctx context.Context, jobID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok || job.Status != StatusPending {
		return false, nil
	}
	job.UpdatedAt = now
	r.byID[jobID] = job
	return true, nil
}

func sortByUpdated(jobs []AnalysisJob) {
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].UpdatedAt.Before(jobs[k].UpdatedAt) })
}

var _ Repo = (*MemoryRepo)(nil)
