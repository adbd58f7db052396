package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
	// SendDelayed delivers a message after the given delay. Backends cap the
	// delay at their own ceiling (900s for SQS).
	SendDelayed(ctx context.Context, msg Message, delay time.Duration) error
}
