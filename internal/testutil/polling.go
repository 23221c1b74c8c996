package testutil

import (
	"context"
	"fmt"
	"time"
)

// PollInterval is the default delay between checks.
const PollInterval = 10 * time.Millisecond

// Poll checks condition every interval until it holds, ctx is done, or
// timeout elapses.
func Poll(ctx context.Context, condition func() bool, timeout, interval time.Duration) error {
	_, err := WaitFor(ctx, func() bool { return condition() }, func(ok bool) bool { return ok }, timeout, interval)
	return err
}

// WaitFor calls get every interval until its result satisfies want, and
// returns that result. On timeout or cancellation it returns the last
// result seen along with the error.
func WaitFor[T any](ctx context.Context, get func() T, want func(T) bool, timeout, interval time.Duration) (T, error) {
	if interval <= 0 {
		interval = PollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		got := get()
		if want(got) {
			return got, nil
		}
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		case <-deadline.C:
			return got, fmt.Errorf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}
