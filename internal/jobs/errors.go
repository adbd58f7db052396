package jobs

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// Reason codes recorded on failed jobs. Everything after submission is
// captured in the job row; polling clients only ever see status plus one of
// these codes.
const (
	ReasonValidation   = "VALIDATION_ERROR"
	ReasonEnqueue      = "ENQUEUE_FAILURE"
	ReasonConnectivity = "CONNECTIVITY_ERROR"
	ReasonTimeout      = "TIMEOUT_ERROR"
	ReasonProcessing   = "PROCESSING_ERROR"
	ReasonInternal     = "INTERNAL_ERROR"
)
