package ports

import "time"

// Clock abstracts time for the engine so staleness checks and debounce
// timers can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules f to run in its own goroutine after d elapses.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled call that can be stopped or rescheduled.
// *time.Timer semantics apply to Stop and Reset return values.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// SystemClock implements Clock using the time package.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
