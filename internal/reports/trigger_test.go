package reports

import (
	"context"
	"errors"
	"testing"
)

func TestTriggerPublishesRequest(t *testing.T) {
	pub := NewMemoryPublisher()
	trigger := &Trigger{Publisher: pub, Format: "pdf"}

	if err := trigger.OnJobCompleted(context.Background(), "job-1", map[string]any{"summary": "s"}); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	reqs := pub.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].JobID != "job-1" || reqs[0].Format != "pdf" {
		t.Fatalf("request = %+v", reqs[0])
	}
	if reqs[0].Version != 1 || reqs[0].RequestedAt == "" {
		t.Fatalf("request metadata = %+v", reqs[0])
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, req Request) error {
	return errors.New("reports queue down")
}

func TestTriggerSurfacesPublishError(t *testing.T) {
	trigger := &Trigger{Publisher: failingPublisher{}, Format: "pdf"}
	if err := trigger.OnJobCompleted(context.Background(), "job-1", nil); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestTriggerNoopWithoutPublisher(t *testing.T) {
	var trigger *Trigger
	if err := trigger.OnJobCompleted(context.Background(), "job-1", nil); err != nil {
		t.Fatalf("nil trigger must be a no-op, got %v", err)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := Request{JobID: "job-1", Format: "docx", RequestedAt: "2026-01-02T03:04:05Z", Version: 1}
	payload, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != req {
		t.Fatalf("decoded = %+v, want %+v", decoded, req)
	}
}
