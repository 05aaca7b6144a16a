package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the syncward domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running engine.
	ErrAlreadyRunning = errors.New("syncward: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped engine.
	ErrNotRunning = errors.New("syncward: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("syncward: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("syncward: invalid configuration")

	// ErrLocked is returned when an edit or send is attempted while the
	// review status forbids edits.
	ErrLocked = errors.New("syncward: session is locked for edits")

	// ErrOffline reports that a save was diverted to the durable queue
	// because the host is offline. It reaches event handlers, never the
	// edit API.
	ErrOffline = errors.New("syncward: offline, save queued for replay")

	// ErrValidation is returned when content fails local validation and is
	// therefore never sent.
	ErrValidation = errors.New("syncward: content failed local validation")

	// ErrTransitionNotAllowed is returned when a requested workflow
	// transition is implausible from the cached review status.
	ErrTransitionNotAllowed = errors.New("syncward: transition not allowed from current review status")

	// ErrUnknownField is returned when an edit targets a field that was
	// never tracked.
	ErrUnknownField = errors.New("syncward: unknown field")
)

// SendError is a classified failure response from the review service.
// Transport-level failures are not SendErrors; they surface as the wrapped
// network error from the HTTP client.
type SendError struct {
	// StatusCode is the HTTP status returned by the service.
	StatusCode int

	// Body is a truncated copy of the response body, for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("syncward: server returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient: server errors and
// rate limiting are retried, other client errors are not.
func (e *SendError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Conflict reports whether the response means the desired end state is
// already achieved. Conflicts are treated as success.
func (e *SendError) Conflict() bool {
	return e.StatusCode == 409
}

// IsRetryable reports whether err should be retried: any transport error or
// a retryable SendError.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// Non-HTTP failures are transport errors by construction.
	return err != nil
}

// IsConflict reports whether err is a conflict response.
func IsConflict(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Conflict()
}

// IsServerError reports whether err is a SendError with a 5xx status.
func IsServerError(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.StatusCode >= 500
}

// IsNetworkError reports whether err is a transport-level failure rather
// than a classified service response.
func IsNetworkError(err error) bool {
	var se *SendError
	return err != nil && !errors.As(err, &se)
}
