package documents

import "time"

const StatusProcessed = "processed"

// Document is the read-side view of an uploaded document. Upload and text
// extraction are owned by a separate service; this service only reads.
type Document struct {
	ID          string
	Title       string
	Status      string
	ContentText string
	CreatedAt   time.Time
}

// Extracted reports whether the document has been processed and carries
// extracted text.
func (d Document) Extracted() bool {
	return d.Status == StatusProcessed && d.ContentText != ""
}

// Comparison pairs two documents for analysis.
type Comparison struct {
	ID                 string
	Title              string
	BaseDocumentID     string
	ComparedDocumentID string
	RequesterID        string
	CreatedAt          time.Time
}
