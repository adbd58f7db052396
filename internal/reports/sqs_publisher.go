package reports

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSPublisher delivers report requests to the reporting queue.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSPublisher constructs an SQS-backed publisher for the given queue URL.
func NewSQSPublisher(ctx context.Context, queueURL string) (*SQSPublisher, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("reports queue URL is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQSPublisher{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Publish sends a report request to the reporting queue.
func (p *SQSPublisher) Publish(ctx context.Context, req Request) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode report request: %w", err)
	}
	if _, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
	}); err != nil {
		return fmt.Errorf("sqs send report request: %w", err)
	}
	return nil
}

var _ Publisher = (*SQSPublisher)(nil)

// MemoryPublisher records report requests in memory for tests and local dev.
type MemoryPublisher struct {
	mu       sync.Mutex
	requests []Request
}

// NewMemoryPublisher constructs an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the request.
func (p *MemoryPublisher) Publish(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return nil
}

// Requests returns a copy of all recorded requests.
func (p *MemoryPublisher) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

var _ Publisher = (*MemoryPublisher)(nil)
