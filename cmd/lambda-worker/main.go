package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"pixelpharm-backend/internal/bootstrap"
	"pixelpharm-backend/internal/shared/config"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/workerproc"
)

var (
	initOnce  sync.Once
	initErr   error
	processor workerproc.Processor
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(cfg.Env)
	// Messages are processed inline here; never re-enqueue.
	cfg.QueueURL = ""
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	processor = app.Processor
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleBatch(ctx, processor, event), nil
}

// handleBatch reports only records worth retrying. Undecodable records and
// permanent processing failures are dropped so they do not loop through
// redelivery.
func handleBatch(ctx context.Context, proc workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		err := workerproc.HandleMessage(ctx, proc, record.Body)
		if err == nil {
			continue
		}
		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()}
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) {
			fields["upload_id"] = procErr.UploadID
			fields["request_id"] = procErr.RequestID
			fields["retryable"] = workerproc.ShouldRetry(err)
			telemetry.Error("lambda_worker.upload.failed", fields)
			if workerproc.ShouldRetry(err) {
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			}
			continue
		}
		telemetry.Error("lambda_worker.upload.unrecoverable", fields)
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
