package engine

import (
	"context"
	"time"
)

// Default retry schedule for transient send failures.
const (
	DefaultRetryInitial = 1 * time.Second
	DefaultRetryMax     = 4 * time.Second
	DefaultMaxRetries   = 3
)

// backoff yields the escalating delays between retry attempts: the delay
// doubles after each wait, capped at max. With the defaults this produces
// the 1s, 2s, 4s schedule.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// newBackoff creates a backoff with the given initial and max delays.
func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Wait blocks for the current delay and escalates it for next time.
// Returns early with ctx.Err() if the context is canceled.
func (b *backoff) Wait(ctx context.Context) error {
	d := b.current

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Reset restores the delay to the initial value.
func (b *backoff) Reset() {
	b.current = b.initial
}
