package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSClientSendsUploadID(t *testing.T) {
	fake := &fakeSQS{}
	client := NewSQSClientWith(fake, "https://sqs.example/queue")
	if err := client.Send(context.Background(), Message{UploadID: "up-1", RequestID: "req-1", Version: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if aws.ToString(fake.input.QueueUrl) != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(fake.input.QueueUrl))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(aws.ToString(fake.input.MessageBody)), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["uploadId"] != "up-1" || body["requestId"] != "req-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSQSClientWrapsSendError(t *testing.T) {
	boom := errors.New("throttled")
	client := NewSQSClientWith(&fakeSQS{err: boom}, "q")
	if err := client.Send(context.Background(), Message{UploadID: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), " ", ""); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
