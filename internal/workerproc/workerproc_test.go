package workerproc

import (
	"context"
	"errors"
	"testing"

	"docdiff-backend/internal/bootstrap"
)

type stubProcessor struct {
	calls []string
	err   error
}

func (s *stubProcessor) Process(ctx context.Context, jobID string) error {
	s.calls = append(s.calls, jobID)
	return s.err
}

func TestParseMessage(t *testing.T) {
	msg, meta, err := ParseMessage(`{"jobId": "job-1", "requestId": "req-1", "attempt": 0, "version": 1}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.JobID != "job-1" || msg.RequestID != "req-1" {
		t.Fatalf("msg = %+v", msg)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestParseMessageEmptyBody(t *testing.T) {
	_, _, err := ParseMessage("   ")
	var emptyErr ErrEmptyBody
	if !errors.As(err, &emptyErr) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}
}

func TestParseMessageInvalidJSON(t *testing.T) {
	_, meta, err := ParseMessage(`{not json`)
	var decodeErr ErrDecode
	if !errors.As(err, &decodeErr) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if meta.BodyLen != len(`{not json`) {
		t.Fatalf("meta.BodyLen = %d", meta.BodyLen)
	}
}

func TestParseMessageMissingJobID(t *testing.T) {
	_, _, err := ParseMessage(`{"requestId": "req-1"}`)
	var missingErr ErrMissingJobID
	if !errors.As(err, &missingErr) {
		t.Fatalf("err = %v, want ErrMissingJobID", err)
	}
	if missingErr.RequestID != "req-1" {
		t.Fatalf("request id = %q", missingErr.RequestID)
	}
}

func TestParseMessageRejectsNewerSchemaVersion(t *testing.T) {
	_, _, err := ParseMessage(`{"jobId": "job-1", "version": 2}`)
	var versionErr ErrUnsupportedVersion
	if !errors.As(err, &versionErr) {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
	if versionErr.Version != 2 {
		t.Fatalf("version = %d, want 2", versionErr.Version)
	}

	// Current and pre-versioned payloads stay accepted.
	if _, _, err := ParseMessage(`{"jobId": "job-1", "version": 1}`); err != nil {
		t.Fatalf("version 1: %v", err)
	}
	if _, _, err := ParseMessage(`{"jobId": "job-1"}`); err != nil {
		t.Fatalf("missing version: %v", err)
	}
}

func TestHandleMessageDispatchesToProcessor(t *testing.T) {
	proc := &stubProcessor{}
	app := &bootstrap.App{JobProcessor: proc}

	err := HandleMessage(context.Background(), app, `{"jobId": "job-1", "requestId": "req-1"}`)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(proc.calls) != 1 || proc.calls[0] != "job-1" {
		t.Fatalf("calls = %v", proc.calls)
	}
}

func TestHandleMessageWrapsProcessingError(t *testing.T) {
	proc := &stubProcessor{err: errors.New("db down")}
	app := &bootstrap.App{JobProcessor: proc}

	err := HandleMessage(context.Background(), app, `{"jobId": "job-1", "requestId": "req-1"}`)
	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("err = %v, want ErrProcess", err)
	}
	if procErr.JobID != "job-1" || procErr.RequestID != "req-1" {
		t.Fatalf("procErr = %+v", procErr)
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	proc := &stubProcessor{}
	app := &bootstrap.App{JobProcessor: proc}

	msg, _, err := ParseMessage(`{"jobId": "job-ctx"}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	ctx := WithParsedMessage(context.Background(), msg)

	// Body would fail to parse; the pre-parsed message wins.
	if err := HandleMessage(ctx, app, "ignored"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(proc.calls) != 1 || proc.calls[0] != "job-ctx" {
		t.Fatalf("calls = %v", proc.calls)
	}
}

func TestHandleMessageRequiresProcessor(t *testing.T) {
	if err := HandleMessage(context.Background(), &bootstrap.App{}, `{"jobId": "job-1"}`); err == nil {
		t.Fatal("expected error without a processor")
	}
}
