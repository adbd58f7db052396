package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"docdiff-backend/internal/documents"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantCode   string
		wantsRetry bool
	}{
		{"nil", nil, ReasonInternal, false},
		{"deadline", fmt.Errorf("compare: %w", context.DeadlineExceeded), ReasonTimeout, true},
		{"timeout text", errors.New("request timeout after 300s"), ReasonTimeout, true},
		{"refused", errors.New("dial tcp: connection refused"), ReasonConnectivity, true},
		{"upstream 5xx", errors.New("ollama generate: http status 503"), ReasonConnectivity, true},
		{"schema", errors.New("inference output schema mismatch: missing summary"), ReasonProcessing, true},
		{"invalid json", errors.New("inference output invalid JSON: unexpected end"), ReasonProcessing, true},
		{"missing docs", fmt.Errorf("document pair lookup: %w", documents.ErrNotFound), ReasonValidation, false},
		{"unextracted", errors.New("documents not processed with extracted text"), ReasonValidation, false},
		{"unknown", errors.New("something odd"), ReasonInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, countRetry := Classify(tc.err)
			if code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
			if countRetry != tc.wantsRetry {
				t.Fatalf("countRetry = %v, want %v", countRetry, tc.wantsRetry)
			}
		})
	}
}

func TestRetryLimit(t *testing.T) {
	if got := retryLimit(ReasonTimeout, 3); got != 3 {
		t.Fatalf("timeout limit = %d, want 3", got)
	}
	if got := retryLimit(ReasonConnectivity, 5); got != 5 {
		t.Fatalf("connectivity limit = %d, want 5", got)
	}
	if got := retryLimit(ReasonProcessing, 3); got != 2 {
		t.Fatalf("processing limit = %d, want 2", got)
	}
	if got := retryLimit(ReasonProcessing, 1); got != 1 {
		t.Fatalf("processing limit with maxRetries=1 = %d, want 1", got)
	}
	if got := retryLimit(ReasonValidation, 3); got != 0 {
		t.Fatalf("validation limit = %d, want 0", got)
	}
	if got := retryLimit(ReasonInternal, 3); got != 0 {
		t.Fatalf("internal limit = %d, want 0", got)
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			delay := Backoff(attempt)
			if delay < time.Second {
				t.Fatalf("attempt %d: delay %v below floor", attempt, delay)
			}
			if delay > backoffCap {
				t.Fatalf("attempt %d: delay %v above cap %v", attempt, delay, backoffCap)
			}
		}
	}
}

func TestBackoffGrowsWithAttempts(t *testing.T) {
	// Jitter is +-50%, so the minimum possible delay for attempt 4
	// (base 40s, min 20s) still exceeds the maximum for attempt 1
	// (base 5s, max 7.5s).
	for i := 0; i < 50; i++ {
		early := Backoff(1)
		late := Backoff(4)
		if late <= early {
			t.Fatalf("Backoff(4)=%v not greater than Backoff(1)=%v", late, early)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	msg := sanitizeError(errors.New("line one\nline two\r\nline three"))
	if strings.ContainsAny(msg, "\n\r") {
		t.Fatalf("sanitized message still multiline: %q", msg)
	}

	long := sanitizeError(errors.New(strings.Repeat("x", 2000)))
	if len(long) != 500 {
		t.Fatalf("sanitized length = %d, want 500", len(long))
	}

	if sanitizeError(nil) != "" {
		t.Fatal("nil error must sanitize to empty string")
	}
}
