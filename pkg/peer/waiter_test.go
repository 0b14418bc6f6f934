package peer

import (
	"context"
	"testing"
	"time"
)

func TestWaiter_CompleteOK(t *testing.T) {
	w := newWaiter()
	go w.completeOK("pong")

	payload, err := w.await(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if payload != "pong" {
		t.Fatalf("payload = %q, want %q", payload, "pong")
	}
}

func TestWaiter_CompleteErr(t *testing.T) {
	w := newWaiter()
	go w.completeErr(ErrSessionClosed)

	_, err := w.await(context.Background(), time.Second)
	if err != ErrSessionClosed {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestWaiter_Timeout(t *testing.T) {
	w := newWaiter()
	_, err := w.await(context.Background(), 10*time.Millisecond)
	if err != ErrReadTimeout {
		t.Fatalf("err = %v, want ErrReadTimeout", err)
	}
}

// A waiter's terminal transition must be idempotent: a second completion,
// from either source, is a silent no-op (SPEC_FULL §3 ownership note).
func TestWaiter_SecondCompletionIsNoOp(t *testing.T) {
	w := newWaiter()
	w.completeOK("first")
	w.completeErr(ErrSessionClosed) // must not overwrite or panic

	payload, err := w.await(context.Background(), time.Second)
	if err != nil || payload != "first" {
		t.Fatalf("got (%q, %v), want (%q, nil)", payload, err, "first")
	}
}

func TestWaiter_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newWaiter()
	_, err := w.await(ctx, time.Second)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
