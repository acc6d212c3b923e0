package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "uploads/u/scan.png", want: "uploads/u/scan.png"},
		{name: "simple prefix", prefix: "pp", key: "uploads/u/scan.png", want: "pp/uploads/u/scan.png"},
		{name: "prefix slashes", prefix: "/pp/", key: "/uploads/u/scan.png", want: "pp/uploads/u/scan.png"},
		{name: "empty key", prefix: "pp", key: "", want: "pp"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestPresignPutSignsHostOnly(t *testing.T) {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	}
	store := NewWithClient(s3.NewFromConfig(cfg), "bucket", "pp", "")

	raw, err := store.PresignPut(context.Background(), "uploads/u/scan.png", "image/png", 0)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.Contains(parsed.Path, "pp/uploads/u/scan.png") {
		t.Fatalf("expected prefixed key in path, got %s", parsed.Path)
	}
	signed := parsed.Query().Get("X-Amz-SignedHeaders")
	if strings.Contains(signed, "content-length") || !strings.Contains(signed, "host") {
		t.Fatalf("unexpected signed headers: %s", signed)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrap: %w", &s3types.NoSuchKey{})) {
		t.Fatalf("expected NoSuchKey to be not found")
	}
	if !isNotFound(&s3types.NotFound{}) {
		t.Fatalf("expected NotFound to be not found")
	}
	if isNotFound(errors.New("boom")) {
		t.Fatalf("expected generic error not to be not found")
	}
}

func TestLocationAppliesPrefix(t *testing.T) {
	cfg := aws.Config{Region: "us-east-1"}
	store := NewWithClient(s3.NewFromConfig(cfg), "bucket", "/pp/", "")

	bucket, key := store.Location("uploads/u/report.pdf")
	if bucket != "bucket" || key != "pp/uploads/u/report.pdf" {
		t.Fatalf("unexpected location %s/%s", bucket, key)
	}
}
