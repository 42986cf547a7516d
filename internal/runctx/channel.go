package runctx

import (
	"context"
	"errors"
	"time"
)

// ErrIdle is returned by RecvWithin when nothing arrived within the idle
// window.
var ErrIdle = errors.New("no data received within idle timeout")

// RecvWithin waits for the next value from in. ok is false once in is closed.
// A non-zero idle bounds the wait and yields ErrIdle; cancellation yields
// ctx.Err().
func RecvWithin[T any](ctx context.Context, in <-chan T, idle time.Duration) (value T, ok bool, err error) {
	var timeout <-chan time.Time
	if idle > 0 {
		timer := time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return value, false, ctx.Err()
	case <-timeout:
		return value, false, ErrIdle
	case value, ok = <-in:
		return value, ok, nil
	}
}
