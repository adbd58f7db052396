package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"docdiff-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

// WithTransportRetry wraps a client with a single retry for transient
// transport failures. Application-level failures pass through unchanged.
func WithTransportRetry(base Client, jobID, requestID string) Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base, jobID: jobID, requestID: requestID}
}

type retryingClient struct {
	base      Client
	jobID     string
	requestID string
}

func (r retryingClient) Compare(ctx context.Context, input Input) (json.RawMessage, error) {
	resp, err := r.base.Compare(ctx, input)
	if err == nil || !IsTransient(err) {
		return resp, err
	}

	telemetry.Warn("inference.retry", map[string]any{
		"request_id": r.requestID,
		"job_id":     r.jobID,
		"error":      err.Error(),
	})
	select {
	case <-time.After(retryBaseDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.base.Compare(ctx, input)
}

// IsTransient reports whether an inference error looks like a transient
// transport failure worth an immediate in-call retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
