package jobs

import (
	"context"
	"time"

	"docdiff-backend/internal/queue"
	"docdiff-backend/internal/shared/metrics"
	"docdiff-backend/internal/shared/telemetry"
)

const sweepBatchSize = 100

// Reconciler repairs the two store/broker inconsistencies the pipeline can
// reach: processing jobs whose lease expired without a terminal write, and
// pending jobs whose queue message was lost.
type Reconciler struct {
	Repo         Repo
	Queue        queue.Client
	MaxRetries   int
	PendingGrace time.Duration
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, republished, err := r.Sweep(ctx)
			if err != nil {
				telemetry.Error("reconcile.sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			if reclaimed > 0 || republished > 0 {
				telemetry.Info("reconcile.sweep", map[string]any{
					"reclaimed":   reclaimed,
					"republished": republished,
				})
			}
		}
	}
}

// Sweep runs one reconciliation pass and reports how many jobs it touched.
func (r *Reconciler) Sweep(ctx context.Context) (reclaimed, republished int, err error) {
	now := time.Now().UTC()

	expired, err := r.Repo.ExpiredLeases(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, job := range expired {
		if r.reclaim(ctx, job, now) {
			reclaimed++
		}
	}

	stale, err := r.Repo.StalePending(ctx, now.Add(-r.PendingGrace), sweepBatchSize)
	if err != nil {
		return reclaimed, 0, err
	}
	for _, job := range stale {
		if r.republish(ctx, job, now) {
			republished++
		}
	}
	return reclaimed, republished, nil
}

// reclaim treats an expired lease as a timeout failure. The worker may still
// be running; its later Complete or Fail will miss the CAS and lose. The
// Reclaim CAS refuses live leases, so a job that was failed, requeued, and
// re-claimed after the ExpiredLeases snapshot is left alone.
func (r *Reconciler) reclaim(ctx context.Context, job AnalysisJob, now time.Time) bool {
	retryCount, ok, err := r.Repo.Reclaim(ctx, job.ID, ReasonTimeout, "lease expired before completion", now)
	if err != nil {
		telemetry.Error("reconcile.reclaim_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		return false
	}
	if !ok {
		return false
	}

	metrics.IncJobsReclaimed()
	metrics.IncJobsFailed()
	telemetry.Warn("job.status", map[string]any{
		"job_id":            job.ID,
		"comparison_id":     job.ComparisonID,
		"status":            StatusError,
		"status_transition": "processing->error",
		"reason":            ReasonTimeout,
		"retry_count":       retryCount,
		"error":             "lease expired before completion",
	})

	policy := RetryPolicy{Repo: r.Repo, Queue: r.Queue, MaxRetries: r.MaxRetries}
	policy.Apply(ctx, job.ID, "", ReasonTimeout, retryCount)
	return true
}

// republish re-sends the queue message for a pending job that apparently
// never reached the broker. Redelivery of a message that did survive is
// harmless: the claim CAS deduplicates.
func (r *Reconciler) republish(ctx context.Context, job AnalysisJob, now time.Time) bool {
	touched, err := r.Repo.TouchPending(ctx, job.ID, now)
	if err != nil {
		telemetry.Error("reconcile.touch_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		return false
	}
	if !touched {
		return false
	}

	msg := queue.Message{
		JobID:      job.ID,
		RequestID:  "",
		Attempt:    job.RetryCount,
		EnqueuedAt: now.Format(time.RFC3339),
		Version:    1,
	}
	if err := r.Queue.Send(ctx, msg); err != nil {
		telemetry.Error("reconcile.republish_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		return false
	}

	telemetry.Warn("reconcile.republished", map[string]any{
		"job_id":        job.ID,
		"comparison_id": job.ComparisonID,
		"pending_since": job.UpdatedAt.Format(time.RFC3339),
	})
	return true
}
