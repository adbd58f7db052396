package jobs

import (
	"context"
	"fmt"
	"time"

	"docdiff-backend/internal/documents"
	"docdiff-backend/internal/inference"
	"docdiff-backend/internal/queue"
	"docdiff-backend/internal/shared/metrics"
	"docdiff-backend/internal/shared/telemetry"
)

// Processor executes one claimed job end to end. It owns the
// pending -> processing -> {completed | error} transitions.
type Processor struct {
	Repo        Repo
	Docs        documents.Repo
	Inference   inference.Client
	Reports     ReportTrigger
	Queue       queue.Client
	TaskTimeout time.Duration
	MaxRetries  int
}

// ReportTrigger is notified after a job's completed state is persisted.
type ReportTrigger interface {
	OnJobCompleted(ctx context.Context, jobID string, result map[string]any) error
}

// Process runs the job with the given ID. A nil return means the queue
// message may be acknowledged: either the job reached a persisted terminal
// or retry-requeued state, or the message was a duplicate delivery.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	requestID := requestIDFromContext(ctx)

	job, err := p.Repo.GetByID(ctx, jobID)
	if err != nil {
		if err == ErrNotFound {
			telemetry.Warn("job.unknown", map[string]any{"request_id": requestID, "job_id": jobID})
			return nil
		}
		return fmt.Errorf("job lookup: %w", err)
	}

	startedAt := time.Now().UTC()
	leaseExpiry := startedAt.Add(p.TaskTimeout)
	claimed, err := p.Repo.Claim(ctx, jobID, startedAt, leaseExpiry)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		// Broker redelivery of an already-claimed or finished job.
		telemetry.Info("job.duplicate_delivery", map[string]any{
			"request_id": requestID,
			"job_id":     jobID,
			"status":     job.Status,
		})
		return nil
	}
	metrics.IncJobsClaimed()
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestID,
		"job_id":            jobID,
		"comparison_id":     job.ComparisonID,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})

	if p.Inference == nil {
		p.fail(ctx, job, startedAt, fmt.Errorf("missing inference client"))
		return nil
	}

	base, compared, err := p.Docs.GetPair(ctx, job.ComparisonID)
	if err != nil {
		p.fail(ctx, job, startedAt, fmt.Errorf("document pair lookup comparison=%s: %w", job.ComparisonID, err))
		return nil
	}
	if !base.Extracted() || !compared.Extracted() {
		p.fail(ctx, job, startedAt, fmt.Errorf("documents not processed with extracted text"))
		return nil
	}

	input := inference.Input{
		Model:         job.ModelName,
		BaseTitle:     base.Title,
		BaseText:      base.ContentText,
		ComparedTitle: compared.Title,
		ComparedText:  compared.ContentText,
	}

	client := inference.WithTransportRetry(p.Inference, jobID, requestID)
	inferCtx, cancel := context.WithDeadline(ctx, leaseExpiry)
	raw, err := client.Compare(inferCtx, input)
	cancel()
	if err != nil {
		p.fail(ctx, job, startedAt, fmt.Errorf("inference compare: %w", err))
		return nil
	}

	result, err := ParseResult(raw)
	if err != nil {
		p.fail(ctx, job, startedAt, err)
		return nil
	}

	completedAt := time.Now().UTC()
	ok, err := p.Repo.Complete(ctx, jobID, result, completedAt)
	if err != nil {
		p.fail(ctx, job, startedAt, fmt.Errorf("persist result: %w", err))
		return nil
	}
	if !ok {
		// Lease expired mid-flight and the reclaim sweep took over; the
		// sweep's outcome stands.
		telemetry.Warn("job.lease_lost", map[string]any{
			"request_id": requestID,
			"job_id":     jobID,
		})
		return nil
	}

	metrics.IncJobsCompleted()
	metrics.ObserveJobDurationMs(durationMs(startedAt, completedAt))
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestID,
		"job_id":            jobID,
		"comparison_id":     job.ComparisonID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(startedAt, completedAt),
	})

	if p.Reports != nil {
		// Fire-and-forget: a failed trigger never reverts completed.
		if err := p.Reports.OnJobCompleted(ctx, jobID, result); err != nil {
			telemetry.Error("job.report_trigger_failed", map[string]any{
				"request_id": requestID,
				"job_id":     jobID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, job AnalysisJob, startedAt time.Time, cause error) {
	requestID := requestIDFromContext(ctx)
	code, countRetry := Classify(cause)
	completedAt := time.Now().UTC()

	retryCount, ok, err := p.Repo.Fail(ctx, job.ID, code, sanitizeError(cause), completedAt, countRetry)
	if err != nil {
		telemetry.Error("job.fail_persist", map[string]any{
			"request_id": requestID,
			"job_id":     job.ID,
			"error":      err.Error(),
			"cause":      sanitizeError(cause),
		})
		return
	}
	if !ok {
		telemetry.Warn("job.lease_lost", map[string]any{
			"request_id": requestID,
			"job_id":     job.ID,
		})
		return
	}

	metrics.IncJobsFailed()
	metrics.ObserveJobDurationMs(durationMs(startedAt, completedAt))
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestID,
		"job_id":            job.ID,
		"comparison_id":     job.ComparisonID,
		"status":            StatusError,
		"status_transition": "processing->error",
		"reason":            code,
		"retry_count":       retryCount,
		"error":             sanitizeError(cause),
		"duration_ms":       durationMs(startedAt, completedAt),
	})

	policy := RetryPolicy{Repo: p.Repo, Queue: p.Queue, MaxRetries: p.MaxRetries}
	policy.Apply(ctx, job.ID, requestID, code, retryCount)
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
