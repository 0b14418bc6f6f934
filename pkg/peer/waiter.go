package peer

import (
	"context"
	"sync"
	"time"
)

// waiter is the one-shot promise a DoPost call blocks on. It is registered
// in an Endpoint's pending map under the endpoint's lock and completed
// at most once, either by the inbound reader (onBinaryMessage) or by
// onClose. On timeout DoPost removes it from pending without completing it.
//
// Grounded on broker.waitResp's `done chan struct{}` + closure pattern in
// the teacher, pulled out into a named, map-storable type since here the
// completer and the waiter run on different goroutines that don't share a
// call stack.
type waiter struct {
	done    chan struct{}
	once    sync.Once
	payload string
	err     error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// completeOK resolves the waiter successfully. A second call, from any
// source, is a silent no-op (SPEC_FULL §3 ownership note).
func (w *waiter) completeOK(payload string) {
	w.once.Do(func() {
		w.payload = payload
		close(w.done)
	})
}

// completeErr resolves the waiter with an error. Idempotent like completeOK.
func (w *waiter) completeErr(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// await blocks until the waiter is completed, the context is canceled, or
// timeout elapses, whichever comes first. A context/timeout expiry does
// not complete the waiter — the caller (DoPost) is responsible for
// removing it from pending so a late reply doesn't leak.
func (w *waiter) await(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.payload, w.err
	case <-timer.C:
		return "", ErrReadTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
