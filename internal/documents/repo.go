package documents

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Repo defines read operations against the documents collaborator.
type Repo interface {
	GetComparison(ctx context.Context, comparisonID string) (Comparison, error)
	// GetPair returns the base and compared documents for a comparison.
	GetPair(ctx context.Context, comparisonID string) (Document, Document, error)
	// HasExtractedText reports whether both documents of the comparison have
	// been processed and have extracted text available.
	HasExtractedText(ctx context.Context, comparisonID string) (bool, error)
}
