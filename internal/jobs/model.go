package jobs

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// AnalysisJob is one request to compare two documents via AI inference.
type AnalysisJob struct {
	ID            string         `json:"id"`
	ComparisonID  string         `json:"comparisonId"`
	RequesterID   string         `json:"requesterId"`
	Title         string         `json:"title"`
	ModelName     string         `json:"modelName"`
	Status        string         `json:"status"`
	RetryCount    int            `json:"retryCount"`
	ResultPayload map[string]any `json:"resultPayload,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	LeaseExpiry   *time.Time     `json:"leaseExpiry,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Active reports whether the job still occupies its comparison's
// single-flight slot.
func (j AnalysisJob) Active() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// Terminal reports whether the job reached a final state.
func (j AnalysisJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// ProcessingSeconds returns the wall time between start and completion.
func (j AnalysisJob) ProcessingSeconds() float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}
