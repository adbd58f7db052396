package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docdiff-backend/internal/bootstrap"
	"docdiff-backend/internal/shared/config"
	"docdiff-backend/internal/shared/metrics"
	"docdiff-backend/internal/shared/telemetry"
	"docdiff-backend/internal/workerproc"
)

const (
	sqsRegion                 = "us-east-1"
	visibilityBufferSeconds   = 120
	defaultShutdownTimeoutSec = 30
	pingTimeout               = 5 * time.Second
)

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.JobsQueueURL)
	if queueURL == "" {
		log.Fatal("DD_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In-flight handlers run on a context detached from the shutdown signal,
	// so a SIGTERM stops polling but lets claimed jobs finish and persist
	// their terminal state during the drain window.
	jobCtx, cancelJobs := jobContext(ctx)
	defer cancelJobs()

	visibilitySeconds := envInt("DD_SQS_VISIBILITY_TIMEOUT_SECONDS", int(cfg.TaskTimeout.Seconds())+visibilityBufferSeconds)
	concurrency := cfg.WorkerConcurrency
	shutdownTimeout := time.Duration(envInt("DD_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(sqsRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	checkInference(ctx, app)

	go app.Reconciler.Run(ctx, cfg.ReconcileInterval)

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncMessagesReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(jobCtx, app, sqsClient, queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; cancelling in-flight jobs")
		cancelJobs()
	}
}

// jobContext detaches message handling from the shutdown signal. The returned
// cancel is the drain deadline; until it fires, handlers keep their database
// and queue access.
func jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type modelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// checkInference probes the inference backend once at startup. A failed
// probe is logged but does not block the worker; retries handle the rest.
func checkInference(ctx context.Context, app *bootstrap.App) {
	p, ok := app.Inference.(pinger)
	if !ok {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		telemetry.Warn("worker.inference.unreachable", map[string]any{
			"provider": app.Config.InferenceProvider,
			"error":    err.Error(),
		})
		return
	}
	telemetry.Info("worker.inference.ready", map[string]any{
		"provider": app.Config.InferenceProvider,
		"model":    app.Config.InferenceModel,
	})

	lister, ok := app.Inference.(modelLister)
	if !ok {
		return
	}
	models, err := lister.Models(pingCtx)
	if err != nil {
		return
	}
	if !modelAvailable(models, app.Config.InferenceModel) {
		telemetry.Warn("worker.inference.model_missing", map[string]any{
			"model":     app.Config.InferenceModel,
			"available": models,
		})
	}
}

func modelAvailable(models []string, want string) bool {
	for _, m := range models {
		if m == want || strings.TrimSuffix(m, ":latest") == want {
			return true
		}
	}
	return false
}

func handleMessage(ctx context.Context, app *bootstrap.App, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		switch e := err.(type) {
		case workerproc.ErrEmptyBody:
			fields := baseFields(msg, "", "")
			fields["body_len"] = 0
			telemetry.Error("worker.job.empty_body", fields)
		case workerproc.ErrDecode:
			fields := baseFields(msg, "", "")
			fields["body_len"] = meta.BodyLen
			fields["body_sha256"] = meta.BodySHA
			fields["error"] = e.Err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
		case workerproc.ErrMissingJobID:
			fields := baseFields(msg, "", e.RequestID)
			fields["body_len"] = meta.BodyLen
			fields["body_sha256"] = meta.BodySHA
			telemetry.Error("worker.job.missing_id", fields)
		case workerproc.ErrUnsupportedVersion:
			fields := baseFields(msg, "", "")
			fields["message_version"] = e.Version
			telemetry.Error("worker.job.unsupported_version", fields)
		default:
			fields := baseFields(msg, "", "")
			fields["body_len"] = meta.BodyLen
			fields["error"] = err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
		}
		// Malformed payloads never become processable; delete them.
		if deleteMessage(ctx, client, queueURL, msg, "", "") {
			metrics.IncMessagesDiscarded()
		}
		return
	}

	telemetry.Info("worker.job.received", baseFields(msg, decoded.JobID, decoded.RequestID))

	ctxWithParsed := workerproc.WithParsedMessage(ctx, decoded)
	if err := workerproc.HandleMessage(ctxWithParsed, app, body); err != nil {
		if procErr, ok := err.(workerproc.ErrProcess); ok {
			fields := baseFields(msg, procErr.JobID, procErr.RequestID)
			fields["error"] = procErr.Err.Error()
			telemetry.Error("worker.job.failed", fields)
			return
		}

		fields := baseFields(msg, decoded.JobID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.JobID, decoded.RequestID) {
		telemetry.Info("worker.job.acked", baseFields(msg, decoded.JobID, decoded.RequestID))
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, jobID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, jobID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, jobID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, jobID, requestID string) map[string]any {
	fields := map[string]any{
		"job_id":         jobID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
