package lock

import (
	"context"
	"errors"
	"testing"
)

func TestLocal_WithLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	err := l.WithLock(ctx, "notes", func(ctx context.Context) error {
		if err := l.WithLock(ctx, "notes", func(context.Context) error { return nil }); !errors.Is(err, ErrLocked) {
			t.Errorf("expected ErrLocked for held key, got %v", err)
		}
		if err := l.WithLock(ctx, "other", func(context.Context) error { return nil }); err != nil {
			t.Errorf("other key should be free, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}

	ran := false
	if err := l.WithLock(ctx, "notes", func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("key should be released, got %v", err)
	}
	if !ran {
		t.Error("fn did not run")
	}
}

func TestLocal_ReleasesOnError(t *testing.T) {
	l := NewLocal()
	boom := errors.New("boom")

	if err := l.WithLock(context.Background(), "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if err := l.WithLock(context.Background(), "k", func(context.Context) error { return nil }); err != nil {
		t.Errorf("key should be released after error, got %v", err)
	}
}
