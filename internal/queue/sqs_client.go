package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS caps DelaySeconds at 15 minutes.
const maxSQSDelay = 900 * time.Second

// SQSClient sends queue messages to AWS SQS.
type SQSClient struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSClient constructs an SQS-backed queue client for the given queue URL.
func NewSQSClient(ctx context.Context, queueURL string) (*SQSClient, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSClient{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Send delivers a message to the configured SQS queue.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	return s.SendDelayed(ctx, msg, 0)
}

// SendDelayed delivers a message after the given delay, capped at the SQS maximum.
func (s *SQSClient) SendDelayed(ctx context.Context, msg Message, delay time.Duration) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	}
	if delay > 0 {
		input.DelaySeconds = int32(delay / time.Second)
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
