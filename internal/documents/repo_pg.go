package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// GetComparison returns a comparison by ID.
func (r *PGRepo) GetComparison(ctx context.Context, comparisonID string) (Comparison, error) {
	const query = `
SELECT id, title, base_document_id, compared_document_id, requester_id, created_at
FROM comparisons
WHERE id = $1
LIMIT 1`
	var c Comparison
	err := r.DB.QueryRowContext(ctx, query, comparisonID).Scan(
		&c.ID,
		&c.Title,
		&c.BaseDocumentID,
		&c.ComparedDocumentID,
		&c.RequesterID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comparison{}, ErrNotFound
		}
		return Comparison{}, err
	}
	return c, nil
}

// GetPair returns the base and compared documents for a comparison.
func (r *PGRepo) GetPair(ctx context.Context, comparisonID string) (Document, Document, error) {
	cmp, err := r.GetComparison(ctx, comparisonID)
	if err != nil {
		return Document{}, Document{}, err
	}
	base, err := r.getDocument(ctx, cmp.BaseDocumentID)
	if err != nil {
		return Document{}, Document{}, err
	}
	compared, err := r.getDocument(ctx, cmp.ComparedDocumentID)
	if err != nil {
		return Document{}, Document{}, err
	}
	return base, compared, nil
}

// HasExtractedText reports whether both documents are processed with text.
func (r *PGRepo) HasExtractedText(ctx context.Context, comparisonID string) (bool, error) {
	base, compared, err := r.GetPair(ctx, comparisonID)
	if err != nil {
		return false, err
	}
	return base.Extracted() && compared.Extracted(), nil
}

func (r *PGRepo) getDocument(ctx context.Context, documentID string) (Document, error) {
	const query = `
SELECT id, title, status, COALESCE(content_text, ''), created_at
FROM documents
WHERE id = $1
LIMIT 1`
	var d Document
	err := r.DB.QueryRowContext(ctx, query, documentID).Scan(
		&d.ID,
		&d.Title,
		&d.Status,
		&d.ContentText,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

var _ Repo = (*PGRepo)(nil)
