package syncward

import (
	"time"

	"github.com/reviewlab/syncward/internal/engine"
)

// EventHandler receives engine events. All callbacks are invoked
// synchronously from engine goroutines and must return quickly; they must
// not call back into the engine. Any subset of methods may be no-ops.
type EventHandler interface {
	// OnStateChange is called on engine lifecycle transitions.
	OnStateChange(event StateChangeEvent)

	// OnGlobalStatus is called when the aggregate sync status changes.
	OnGlobalStatus(status GlobalStatus)

	// OnFieldStatus is called when a tracked field's status changes.
	OnFieldStatus(fieldID string, status FieldStatus)

	// OnSaveSuccess is called after a successful batch or grading save.
	OnSaveSuccess(event SaveSuccessEvent)

	// OnSaveError is called when a save ends without success: queued for
	// replay while offline, or failed after exhausted retries.
	OnSaveError(event SaveErrorEvent)

	// OnReviewState is called when the authoritative review state changes.
	OnReviewState(state ReviewState)
}

// StateChangeEvent describes an engine lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SaveSuccessEvent describes a completed save.
type SaveSuccessEvent struct {
	FieldCount int
	Duration   time.Duration
}

// SaveErrorEvent describes a save that did not reach the server.
type SaveErrorEvent struct {
	Err error

	// Queued is true when the request was handed to the durable write
	// queue for replay after reconnection; false means retries were
	// exhausted while online and a manual retry is armed.
	Queued bool
}

// eventEmitter adapts EventHandler to the internal emitter interfaces.
// A nil handler turns every event into a no-op.
type eventEmitter struct {
	handler EventHandler
}

func (e *eventEmitter) OnStateChange(previous, current engine.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitter) OnGlobalStatus(status GlobalStatus) {
	if e.handler == nil {
		return
	}
	e.handler.OnGlobalStatus(status)
}

func (e *eventEmitter) OnFieldStatus(fieldID string, status FieldStatus) {
	if e.handler == nil {
		return
	}
	e.handler.OnFieldStatus(fieldID, status)
}

func (e *eventEmitter) OnSaveSuccess(fieldCount int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnSaveSuccess(SaveSuccessEvent{
		FieldCount: fieldCount,
		Duration:   duration,
	})
}

func (e *eventEmitter) OnSaveError(err error, queued bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnSaveError(SaveErrorEvent{
		Err:    err,
		Queued: queued,
	})
}

func (e *eventEmitter) OnReviewState(state ReviewState) {
	if e.handler == nil {
		return
	}
	e.handler.OnReviewState(state)
}
