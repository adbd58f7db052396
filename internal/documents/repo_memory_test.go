package documents

import (
	"context"
	"errors"
	"testing"
)

func seedRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	repo.AddDocument(Document{ID: "doc-1", Title: "Base", Status: StatusProcessed, ContentText: "text one"})
	repo.AddDocument(Document{ID: "doc-2", Title: "Compared", Status: StatusProcessed, ContentText: "text two"})
	repo.AddComparison(Comparison{ID: "cmp-1", BaseDocumentID: "doc-1", ComparedDocumentID: "doc-2"})
	return repo
}

func TestGetPair(t *testing.T) {
	repo := seedRepo()

	base, compared, err := repo.GetPair(context.Background(), "cmp-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if base.ID != "doc-1" || compared.ID != "doc-2" {
		t.Fatalf("pair = %s/%s", base.ID, compared.ID)
	}

	if _, _, err := repo.GetPair(context.Background(), "cmp-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHasExtractedText(t *testing.T) {
	repo := seedRepo()

	ready, err := repo.HasExtractedText(context.Background(), "cmp-1")
	if err != nil {
		t.Fatalf("HasExtractedText: %v", err)
	}
	if !ready {
		t.Fatal("both documents are processed, want true")
	}

	repo.AddDocument(Document{ID: "doc-3", Title: "Unprocessed", Status: "uploaded"})
	repo.AddComparison(Comparison{ID: "cmp-2", BaseDocumentID: "doc-1", ComparedDocumentID: "doc-3"})
	ready, err = repo.HasExtractedText(context.Background(), "cmp-2")
	if err != nil {
		t.Fatalf("HasExtractedText: %v", err)
	}
	if ready {
		t.Fatal("unprocessed document must not count as extracted")
	}
}

func TestExtracted(t *testing.T) {
	if (Document{Status: StatusProcessed, ContentText: "x"}).Extracted() != true {
		t.Fatal("processed doc with text must be extracted")
	}
	if (Document{Status: StatusProcessed}).Extracted() {
		t.Fatal("empty text must not count as extracted")
	}
	if (Document{Status: "uploaded", ContentText: "x"}).Extracted() {
		t.Fatal("unprocessed status must not count as extracted")
	}
}
