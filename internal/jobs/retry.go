package jobs

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"docdiff-backend/internal/documents"
	"docdiff-backend/internal/queue"
	"docdiff-backend/internal/shared/metrics"
	"docdiff-backend/internal/shared/telemetry"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 900 * time.Second
)

// Classify maps a processing failure to a reason code and whether the
// failure counts against the retry budget.
func Classify(err error) (string, bool) {
	if err == nil {
		return ReasonInternal, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, true
	}
	if errors.Is(err, documents.ErrNotFound) {
		return ReasonValidation, false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ReasonTimeout, true
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "http status 5"):
		return ReasonConnectivity, true
	case strings.Contains(msg, "invalid json") ||
		strings.Contains(msg, "schema") ||
		strings.Contains(msg, "output invalid") ||
		strings.Contains(msg, "decode"):
		return ReasonProcessing, true
	case strings.Contains(msg, "extracted text") || strings.Contains(msg, "not processed"):
		return ReasonValidation, false
	default:
		return ReasonInternal, false
	}
}

// retryLimit returns the number of retryable failures allowed before the
// error state becomes terminal. Malformed inference output may be
// deterministic, so it gets a single retry regardless of maxRetries.
func retryLimit(code string, maxRetries int) int {
	switch code {
	case ReasonTimeout, ReasonConnectivity:
		return maxRetries
	case ReasonProcessing:
		if maxRetries < 2 {
			return maxRetries
		}
		return 2
	default:
		return 0
	}
}

// Backoff returns the re-enqueue delay for the given attempt (1-based),
// doubling per attempt with +-50% jitter to avoid a thundering herd against
// the inference backend.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay))) - delay/2
	delay += jitter
	if delay < time.Second {
		delay = time.Second
	}
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

// RetryPolicy re-enqueues failed jobs while they have retry budget left.
type RetryPolicy struct {
	Repo       Repo
	Queue      queue.Client
	MaxRetries int
}

// Apply inspects a just-failed job and, when its reason code is retryable
// and budget remains, transitions it back to pending and re-publishes with
// backoff. Returns true when the job was re-enqueued.
func (p RetryPolicy) Apply(ctx context.Context, jobID, requestID, code string, retryCount int) bool {
	if p.Repo == nil || p.Queue == nil {
		return false
	}
	if retryCount >= retryLimit(code, p.MaxRetries) || retryCount < 1 {
		return false
	}

	ok, err := p.Repo.Requeue(ctx, jobID)
	if err != nil || !ok {
		if err != nil {
			telemetry.Error("job.requeue_failed", map[string]any{
				"request_id": requestID,
				"job_id":     jobID,
				"error":      err.Error(),
			})
		}
		return false
	}

	delay := Backoff(retryCount)
	msg := queue.Message{
		JobID:      jobID,
		RequestID:  requestID,
		Attempt:    retryCount,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := p.Queue.SendDelayed(ctx, msg, delay); err != nil {
		telemetry.Error("job.retry_publish_failed", map[string]any{
			"request_id": requestID,
			"job_id":     jobID,
			"error":      err.Error(),
		})
		if markErr := p.Repo.MarkEnqueueFailed(ctx, jobID, sanitizeError(err)); markErr != nil {
			telemetry.Error("job.mark_enqueue_failed", map[string]any{
				"job_id": jobID,
				"error":  markErr.Error(),
			})
		}
		return false
	}

	metrics.IncJobsRetried()
	telemetry.Warn("job.retry_enqueued", map[string]any{
		"request_id":  requestID,
		"job_id":      jobID,
		"reason":      code,
		"retry_count": retryCount,
		"delay_ms":    float64(delay.Microseconds()) / 1000.0,
	})
	return true
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
