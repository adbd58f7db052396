package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docdiff-backend/internal/documents"
	"docdiff-backend/internal/queue"
	"docdiff-backend/internal/shared/metrics"
	"docdiff-backend/internal/shared/telemetry"
)

// Service is the submission gateway and read path for analysis jobs.
type Service struct {
	Repo         Repo
	Docs         documents.Repo
	Queue        queue.Client
	DefaultModel string
}

// Submit validates the comparison and either creates a new pending job or
// returns the comparison's already-active job. created reports which
// happened. Submission is idempotent per comparison while a job is active.
func (s *Service) Submit(ctx context.Context, comparisonID, requesterID, modelName string) (AnalysisJob, bool, error) {
	if strings.TrimSpace(comparisonID) == "" {
		return AnalysisJob{}, false, fmt.Errorf("%w: comparisonId is required", ErrValidation)
	}
	if strings.TrimSpace(requesterID) == "" {
		return AnalysisJob{}, false, fmt.Errorf("%w: requesterId is required", ErrValidation)
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = s.DefaultModel
	}

	cmp, err := s.Docs.GetComparison(ctx, comparisonID)
	if err != nil {
		if err == documents.ErrNotFound {
			return AnalysisJob{}, false, fmt.Errorf("%w: comparison %s not found", ErrValidation, comparisonID)
		}
		return AnalysisJob{}, false, fmt.Errorf("comparison lookup: %w", err)
	}

	ready, err := s.Docs.HasExtractedText(ctx, comparisonID)
	if err != nil {
		return AnalysisJob{}, false, fmt.Errorf("extracted text check: %w", err)
	}
	if !ready {
		return AnalysisJob{}, false, fmt.Errorf("%w: both documents must be processed with extracted text", ErrValidation)
	}

	job := AnalysisJob{
		ID:           uuid.NewString(),
		ComparisonID: comparisonID,
		RequesterID:  requesterID,
		Title:        cmp.Title,
		ModelName:    modelName,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	created, isNew, err := s.Repo.GetOrCreateForComparison(ctx, job)
	if err != nil {
		return AnalysisJob{}, false, err
	}
	if !isNew {
		metrics.IncJobsReused()
		telemetry.Info("job.submit_reused", map[string]any{
			"request_id":    requestIDFromContext(ctx),
			"comparison_id": comparisonID,
			"job_id":        created.ID,
			"status":        created.Status,
		})
		return created, false, nil
	}

	metrics.IncJobsSubmitted()

	msg := queue.Message{
		JobID:      created.ID,
		RequestID:  requestIDFromContext(ctx),
		Attempt:    0,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		// Store and broker writes are not atomic. A pending row with no
		// message would sit forever, so record the failure on the job.
		if markErr := s.Repo.MarkEnqueueFailed(ctx, created.ID, sanitizeError(err)); markErr != nil {
			telemetry.Error("job.mark_enqueue_failed", map[string]any{
				"job_id": created.ID,
				"error":  markErr.Error(),
			})
		}
		telemetry.Error("job.enqueue_failed", map[string]any{
			"request_id":    requestIDFromContext(ctx),
			"comparison_id": comparisonID,
			"job_id":        created.ID,
			"error":         err.Error(),
		})
		// The caller still gets the job id; polling surfaces the failure.
		failed, getErr := s.Repo.GetByID(ctx, created.ID)
		if getErr != nil {
			created.Status = StatusError
			created.ErrorCode = ReasonEnqueue
			return created, true, nil
		}
		return failed, true, nil
	}

	telemetry.Info("job.submitted", map[string]any{
		"request_id":    requestIDFromContext(ctx),
		"comparison_id": comparisonID,
		"requester_id":  requesterID,
		"job_id":        created.ID,
		"model":         modelName,
	})
	return created, true, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (AnalysisJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return AnalysisJob{}, fmt.Errorf("%w: jobId is required", ErrValidation)
	}
	return s.Repo.GetByID(ctx, jobID)
}

// List returns jobs for a requester ordered newest-first.
func (s *Service) List(ctx context.Context, requesterID string, limit, offset int) ([]AnalysisJob, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: requesterId is required", ErrValidation)
	}
	return s.Repo.ListByRequester(ctx, requesterID, limit, offset)
}
