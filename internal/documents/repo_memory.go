package documents

import (
	"context"
	"sync"
)

// MemoryRepo stores documents and comparisons in memory and is safe for
// concurrent use.
type MemoryRepo struct {
	mu          sync.RWMutex
	documents   map[string]Document
	comparisons map[string]Comparison
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		documents:   make(map[string]Document),
		comparisons: make(map[string]Comparison),
	}
}

// AddDocument stores a document.
func (r *MemoryRepo) AddDocument(doc Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = doc
}

// AddComparison stores a comparison.
func (r *MemoryRepo) AddComparison(cmp Comparison) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparisons[cmp.ID] = cmp
}

// GetComparison returns a comparison by ID.
func (r *MemoryRepo) GetComparison(ctx context.Context, comparisonID string) (Comparison, error) {
	if err := ctx.Err(); err != nil {
		return Comparison{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmp, ok := r.comparisons[comparisonID]
	if !ok {
		return Comparison{}, ErrNotFound
	}
	return cmp, nil
}

// GetPair returns the base and compared documents for a comparison.
func (r *MemoryRepo) GetPair(ctx context.Context, comparisonID string) (Document, Document, error) {
	cmp, err := r.GetComparison(ctx, comparisonID)
	if err != nil {
		return Document{}, Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	base, ok := r.documents[cmp.BaseDocumentID]
	if !ok {
		return Document{}, Document{}, ErrNotFound
	}
	compared, ok := r.documents[cmp.ComparedDocumentID]
	if !ok {
		return Document{}, Document{}, ErrNotFound
	}
	return base, compared, nil
}

// HasExtractedText reports whether both documents are processed with text.
func (r *MemoryRepo) HasExtractedText(ctx context.Context, comparisonID string) (bool, error) {
	base, compared, err := r.GetPair(ctx, comparisonID)
	if err != nil {
		return false, err
	}
	return base.Extracted() && compared.Extracted(), nil
}

var _ Repo = (*MemoryRepo)(nil)
