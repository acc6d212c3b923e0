package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pixelpharm-backend/internal/processing"
	"pixelpharm-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err  error
	seen []string
}

func (f *fakeProcessor) ProcessUpload(ctx context.Context, uploadID string) error {
	f.seen = append(f.seen, uploadID)
	return f.err
}

func message(id, receipt, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	body, _ := queue.EncodeMessage(queue.Message{UploadID: "upload-1", RequestID: "req-1", Version: 1})

	handleMessage(context.Background(), client, "queue", proc, message("m1", "r1", string(body)))

	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected delete of r1, got %v", client.deleted)
	}
	if len(proc.seen) != 1 || proc.seen[0] != "upload-1" {
		t.Fatalf("expected upload-1 processed, got %v", proc.seen)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("boom")}
	body, _ := queue.EncodeMessage(queue.Message{UploadID: "upload-2", RequestID: "req-2", Version: 1})

	handleMessage(context.Background(), client, "queue", proc, message("m2", "r2", string(body)))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesMessageOnPermanentFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: &processing.Failure{Code: processing.CodeOCRUnparseable, Err: errors.New("no json")}}
	body, _ := queue.EncodeMessage(queue.Message{UploadID: "upload-5", Version: 1})

	handleMessage(context.Background(), client, "queue", proc, message("m5", "r5", string(body)))

	if len(client.deleted) != 1 || client.deleted[0] != "r5" {
		t.Fatalf("expected delete of r5, got %v", client.deleted)
	}
}

func TestWorkerKeepsMessageOnRetryableFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: &processing.Failure{Code: processing.CodeOCRTimeout, Retryable: true}}
	body, _ := queue.EncodeMessage(queue.Message{UploadID: "upload-6", Version: 1})

	handleMessage(context.Background(), client, "queue", proc, message("m6", "r6", string(body)))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %v", client.deleted)
	}
}

func TestWorkerDeletesUnrecoverableMessages(t *testing.T) {
	cases := map[string]string{
		"invalid json": "{bad-json",
		"empty body":   "",
		"missing id":   `{"requestId":"req-3","version":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := &fakeSQS{}
			proc := &fakeProcessor{}

			handleMessage(context.Background(), client, "queue", proc, message("m3", "r3", body))

			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %d", len(client.deleted))
			}
			if len(proc.seen) != 0 {
				t.Fatalf("processor should not run, got %v", proc.seen)
			}
		})
	}
}

func TestWorkerKeepsMessageWithoutReceiptHandle(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	body, _ := queue.EncodeMessage(queue.Message{UploadID: "upload-4", Version: 1})
	msg := message("m4", "", string(body))

	handleMessage(context.Background(), client, "queue", proc, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete without receipt handle, got %v", client.deleted)
	}
}
