package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"docdiff-backend/internal/documents"
	"docdiff-backend/internal/queue"
)

func seedComparison(t *testing.T, docRepo *documents.MemoryRepo, comparisonID string, processed bool) {
	t.Helper()
	status := documents.StatusProcessed
	text := "content"
	if !processed {
		status = "uploaded"
		text = ""
	}
	docRepo.AddDocument(documents.Document{ID: "doc-base", Title: "Contract v1", Status: documents.StatusProcessed, ContentText: "base text"})
	docRepo.AddDocument(documents.Document{ID: "doc-compared", Title: "Contract v2", Status: status, ContentText: text})
	docRepo.AddComparison(documents.Comparison{
		ID:                 comparisonID,
		Title:              "Contract v1 vs v2",
		BaseDocumentID:     "doc-base",
		ComparedDocumentID: "doc-compared",
		RequesterID:        "user-1",
		CreatedAt:          time.Now().UTC(),
	})
}

func newTestService(t *testing.T) (*Service, *MemoryRepo, *documents.MemoryRepo, *queue.MemoryClient) {
	t.Helper()
	jobRepo := NewMemoryRepo()
	docRepo := documents.NewMemoryRepo()
	q := queue.NewMemoryClient()
	svc := &Service{Repo: jobRepo, Docs: docRepo, Queue: q, DefaultModel: "llama3"}
	return svc, jobRepo, docRepo, q
}

func TestSubmitCreatesPendingJobAndPublishes(t *testing.T) {
	svc, jobRepo, docRepo, q := newTestService(t)
	seedComparison(t, docRepo, "cmp-1", true)

	job, created, err := svc.Submit(context.Background(), "cmp-1", "user-1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created {
		t.Fatal("expected a new job")
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %q, want %q", job.Status, StatusPending)
	}
	if job.ModelName != "llama3" {
		t.Fatalf("model = %q, want default llama3", job.ModelName)
	}
	if job.Title != "Contract v1 vs v2" {
		t.Fatalf("title = %q", job.Title)
	}

	stored, err := jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get stored job: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("stored status = %q", stored.Status)
	}

	msgs := q.Messages()
	if len(msgs) != 1 {
		t.Fatalf("queue messages = %d, want 1", len(msgs))
	}
	if msgs[0].JobID != job.ID {
		t.Fatalf("message job id = %q, want %q", msgs[0].JobID, job.ID)
	}
	if msgs[0].Attempt != 0 {
		t.Fatalf("message attempt = %d, want 0", msgs[0].Attempt)
	}
}

func TestSubmitIsIdempotentWhileJobActive(t *testing.T) {
	svc, _, docRepo, q := newTestService(t)
	seedComparison(t, docRepo, "cmp-1", true)

	first, created, err := svc.Submit(context.Background(), "cmp-1", "user-1", "llama3")
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}

	second, created, err := svc.Submit(context.Background(), "cmp-1", "user-2", "other-model")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created {
		t.Fatal("second submit must reuse the active job")
	}
	if second.ID != first.ID {
		t.Fatalf("job id = %q, want %q", second.ID, first.ID)
	}
	if len(q.Messages()) != 1 {
		t.Fatalf("queue messages = %d, want 1 (no duplicate publish)", len(q.Messages()))
	}
}

func TestSubmitAllowsNewJobAfterTerminalState(t *testing.T) {
	svc, jobRepo, docRepo, _ := newTestService(t)
	seedComparison(t, docRepo, "cmp-1", true)

	first, _, err := svc.Submit(context.Background(), "cmp-1", "user-1", "")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	now := time.Now().UTC()
	if ok, err := jobRepo.Claim(context.Background(), first.ID, now, now.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, err := jobRepo.Complete(context.Background(), first.ID, map[string]any{"summary": "done"}, now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}

	second, created, err := svc.Submit(context.Background(), "cmp-1", "user-1", "")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !created {
		t.Fatal("expected a new job after the previous one completed")
	}
	if second.ID == first.ID {
		t.Fatal("new job must have a new id")
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, docRepo, _ := newTestService(t)
	seedComparison(t, docRepo, "cmp-1", true)

	cases := []struct {
		name         string
		comparisonID string
		requesterID  string
	}{
		{"missing comparison id", "", "user-1"},
		{"missing requester id", "cmp-1", ""},
		{"unknown comparison", "cmp-missing", "user-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Submit(context.Background(), tc.comparisonID, tc.requesterID, "")
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmitRejectsUnprocessedDocuments(t *testing.T) {
	svc, _, docRepo, q := newTestService(t)
	seedComparison(t, docRepo, "cmp-1", false)

	_, _, err := svc.Submit(context.Background(), "cmp-1", "user-1", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(q.Messages()) != 0 {
		t.Fatal("nothing should be published for a rejected submission")
	}
}

type failingQueue struct{}

func (failingQueue) Send(ctx context.Context, msg queue.Message) error {
	return errors.New("sqs unavailable")
}

func (failingQueue) SendDelayed(ctx context.Context, msg queue.Message, delay time.Duration) error {
	return errors.New("sqs unavailable")
}

func TestSubmitMarksJobOnEnqueueFailure(t *testing.T) {
	jobRepo := NewMemoryRepo()
	docRepo := documents.NewMemoryRepo()
	seedComparison(t, docRepo, "cmp-1", true)
	svc := &Service{Repo: jobRepo, Docs: docRepo, Queue: failingQueue{}, DefaultModel: "llama3"}

	job, created, err := svc.Submit(context.Background(), "cmp-1", "user-1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created {
		t.Fatal("job row should still be created")
	}
	if job.Status != StatusError {
		t.Fatalf("status = %q, want %q", job.Status, StatusError)
	}
	if job.ErrorCode != ReasonEnqueue {
		t.Fatalf("error code = %q, want %q", job.ErrorCode, ReasonEnqueue)
	}

	stored, err := jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get stored job: %v", err)
	}
	if stored.Status != StatusError || stored.ErrorCode != ReasonEnqueue {
		t.Fatalf("stored = %q/%q, want error/%s", stored.Status, stored.ErrorCode, ReasonEnqueue)
	}
}

func TestGetAndListValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("get err = %v, want ErrValidation", err)
	}
	if _, err := svc.Get(context.Background(), "job-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
	if _, err := svc.List(context.Background(), "", 10, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("list err = %v, want ErrValidation", err)
	}
}
