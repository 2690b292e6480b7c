package service

import (
	"context"
	"testing"
	"time"

	"leadscore_backend/platform/apperr"
)

func TestKeyLockSerializes(t *testing.T) {
	locks := newKeyLock()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r, err := locks.Acquire(ctx, "k", time.Second)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			close(done)
			return
		}
		r()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestKeyLockTimeout(t *testing.T) {
	locks := newKeyLock()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = locks.Acquire(ctx, "k", 20*time.Millisecond)
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := newKeyLock()
	ctx := context.Background()

	releaseA, err := locks.Acquire(ctx, "a", time.Second)
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := locks.Acquire(ctx, "b", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire b should not block on a: %v", err)
	}
	releaseB()
}

func TestKeyLockCanceledContext(t *testing.T) {
	locks := newKeyLock()

	release, err := locks.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locks.Acquire(ctx, "k", time.Second); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
