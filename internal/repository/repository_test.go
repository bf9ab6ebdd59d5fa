package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/gallery"
	"github.com/example/face-attendance/internal/logging"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0, 0}
	decoded, err := DecodeEmbedding(EncodeEmbedding(vec), len(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, v := range vec {
		if decoded[i] != v {
			t.Fatalf("component %d: got %v, want %v", i, decoded[i], v)
		}
	}
}

func TestDecodeEmbeddingRejectsBadInput(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}, 0); err == nil {
		t.Fatal("expected error for truncated blob")
	}
	if _, err := DecodeEmbedding(EncodeEmbedding([]float32{1, 2}), 3); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
}

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func TestRetrierRetriesTransientErrors(t *testing.T) {
	r := retrier{
		logger:         zap.NewNop(),
		retryAttempts:  3,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := r.execute(context.Background(), "test.operation", "sess-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetrierReturnsOperationError(t *testing.T) {
	r := retrier{
		logger:         zap.NewNop(),
		retryAttempts:  2,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := r.execute(context.Background(), "test.operation", "sess-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt for a permanent error, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.SessionID != "sess-2" {
		t.Fatalf("unexpected session id: %s", opErr.SessionID)
	}
}

type stubCache struct {
	values map[string]string
	sets   int
}

func (c *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.sets++
	return nil
}

func (c *stubCache) Get(ctx context.Context, key string) (string, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	return "", errors.New("cache: miss")
}

func (c *stubCache) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func TestLoadActiveGalleryServesCachedSnapshot(t *testing.T) {
	entries := []gallery.Entry{
		{IdentityID: 1, Name: "Alice", Code: "S001", Embedding: []float32{1, 0}},
		{IdentityID: 2, Name: "Bob", Code: "S002", Embedding: []float32{0, 1}},
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	cache := &stubCache{values: map[string]string{galleryCacheKey: string(payload)}}
	repo := NewStudentRepository(nil, cache, 2, time.Minute, zap.NewNop())

	snap, err := repo.LoadActiveGallery(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", snap.Len())
	}
	if got := snap.Entries()[0].Name; got != "Alice" {
		t.Fatalf("unexpected first entry: %s", got)
	}
	if cache.sets != 0 {
		t.Fatalf("cache hit should not rewrite the snapshot, got %d sets", cache.sets)
	}
}
