package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryClient buffers messages in memory. Intended for tests and local
// development without a broker.
type MemoryClient struct {
	mu       sync.Mutex
	messages []Message
	delays   []time.Duration
}

// NewMemoryClient constructs an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// Send records the message.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	return m.SendDelayed(ctx, msg, 0)
}

// SendDelayed records the message along with its requested delay.
func (m *MemoryClient) SendDelayed(ctx context.Context, msg Message, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.delays = append(m.delays, delay)
	return nil
}

// Messages returns a copy of all recorded messages.
func (m *MemoryClient) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Delays returns a copy of the recorded per-message delays.
func (m *MemoryClient) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

// Pop removes and returns the oldest message, if any.
func (m *MemoryClient) Pop() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return Message{}, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	m.delays = m.delays[1:]
	return msg, true
}

var _ Client = (*MemoryClient)(nil)
