package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pixelpharm-backend/internal/shared/storage/object"
)

func TestPutGetStat(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	n, err := store.Put(ctx, "uploads/u/abc_labs.txt", "text/plain", strings.NewReader("Glucose 95 mg/dL"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 16 {
		t.Fatalf("expected 16 bytes, got %d", n)
	}

	rc, err := store.Get(ctx, "uploads/u/abc_labs.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "Glucose 95 mg/dL" {
		t.Fatalf("unexpected body %q", body)
	}

	info, err := store.Stat(ctx, "uploads/u/abc_labs.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.SizeBytes != 16 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Get(context.Background(), "uploads/missing.pdf")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Put(context.Background(), "../escape.txt", "text/plain", strings.NewReader("x")); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

func TestDeleteRemovesObject(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	key := "uploads/u/abc_labs.txt"
	if _, err := store.Put(ctx, key, "text/plain", strings.NewReader("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing key should succeed, got %v", err)
	}
}
