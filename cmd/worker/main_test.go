package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docdiff-backend/internal/bootstrap"
	"docdiff-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err error
}

func (f fakeProcessor) Process(ctx context.Context, jobID string) error {
	_ = ctx
	_ = jobID
	return f.err
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{}}
	msgBody, _ := queue.EncodeMessage(queue.Message{JobID: "job-1", RequestID: "req-1"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(string(msgBody)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{err: errors.New("boom")}}
	msgBody, _ := queue.EncodeMessage(queue.Message{JobID: "job-2", RequestID: "req-2"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m2"),
		ReceiptHandle: aws.String("r2"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{}}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnUnsupportedVersion(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{}}
	msg := sqstypes.Message{
		MessageId:     aws.String("m6"),
		ReceiptHandle: aws.String("r6"),
		Body:          aws.String(`{"jobId": "job-6", "version": 9}`),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestModelAvailableMatchesPulledTags(t *testing.T) {
	models := []string{"llama3:latest", "deepseek-r1"}
	if !modelAvailable(models, "llama3") {
		t.Fatal("llama3 should match the :latest tag")
	}
	if !modelAvailable(models, "deepseek-r1") {
		t.Fatal("exact name should match")
	}
	if modelAvailable(models, "mistral") {
		t.Fatal("missing model must not match")
	}
}

func TestWorkerDrainsInFlightJobAfterShutdownSignal(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{}}
	msgBody, _ := queue.EncodeMessage(queue.Message{JobID: "job-5", RequestID: "req-5"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m5"),
		ReceiptHandle: aws.String("r5"),
		Body:          aws.String(string(msgBody)),
	}

	parent, stop := context.WithCancel(context.Background())
	jobCtx, cancelJobs := jobContext(parent)
	defer cancelJobs()

	// The shutdown signal fires while the message is in flight.
	stop()
	if jobCtx.Err() != nil {
		t.Fatal("job context must survive the shutdown signal")
	}

	handleMessage(jobCtx, app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected the drained job to be acked, got %d deletes", len(client.deleted))
	}

	cancelJobs()
	if jobCtx.Err() == nil {
		t.Fatal("drain deadline must cancel the job context")
	}
}

func TestWorkerDeletesOnMissingJobID(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{JobProcessor: fakeProcessor{}}
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String(`{"requestId": "req-4"}`),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
