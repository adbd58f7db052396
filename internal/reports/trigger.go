package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docdiff-backend/internal/shared/telemetry"
)

// Request asks the reporting collaborator to render a completed analysis.
type Request struct {
	JobID       string `json:"jobId"`
	Format      string `json:"format"`
	RequestedAt string `json:"requestedAt"`
	Version     int    `json:"version"`
}

// Publisher delivers report requests to the reporting collaborator.
type Publisher interface {
	Publish(ctx context.Context, req Request) error
}

// EncodeRequest returns the JSON representation of a report request.
func EncodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest parses a JSON payload into a Request.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Trigger enqueues report generation after a job completes. Fire-and-forget:
// a publish failure is logged and left to the reporting collaborator's own
// retry; it never affects the job's terminal state.
type Trigger struct {
	Publisher Publisher
	Format    string
}

// OnJobCompleted publishes a report-generation request for the job.
func (t *Trigger) OnJobCompleted(ctx context.Context, jobID string, result map[string]any) error {
	if t == nil || t.Publisher == nil {
		return nil
	}
	_ = result // the renderer reads the payload from the job store

	req := Request{
		JobID:       jobID,
		Format:      t.Format,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     1,
	}
	if err := t.Publisher.Publish(ctx, req); err != nil {
		return fmt.Errorf("publish report request: %w", err)
	}
	telemetry.Info("report.requested", map[string]any{
		"job_id": jobID,
		"format": t.Format,
	})
	return nil
}
