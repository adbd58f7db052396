package inference

import (
	"context"
	"encoding/json"
)

// Client abstracts inference backends for document comparison.
type Client interface {
	Compare(ctx context.Context, input Input) (json.RawMessage, error)
}

// Input captures the inputs needed for a document comparison.
type Input struct {
	Model         string
	BaseTitle     string
	BaseText      string
	ComparedTitle string
	ComparedText  string
}
