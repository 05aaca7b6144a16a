package domain

import (
	"encoding/json"
	"time"
)

// OpType identifies the kind of write a queued operation carries. The type
// determines the replay precondition applied before the operation is resent.
type OpType string

const (
	// OpSaveCells is a full-snapshot batch save of all tracked fields.
	OpSaveCells OpType = "save-cells"

	// OpSaveGrades is a grading draft save for one or more reviewable items.
	OpSaveGrades OpType = "save-grades"

	// OpSubmitForReview requests the draft -> submitted transition.
	// Replayable only while the server-side status is still draft.
	OpSubmitForReview OpType = "submit-for-review"

	// OpResubmit requests the returned -> submitted transition.
	// Replayable only while the server-side status is still returned.
	OpResubmit OpType = "resubmit"
)

// QueuedOp is a durable record of a write that failed while offline.
// It carries the exact request so replay needs no reconstruction.
type QueuedOp struct {
	// ID is assigned by the queue store, monotonically increasing in
	// insertion order. Zero until persisted.
	ID uint64 `json:"id"`

	// Type determines the replay precondition.
	Type OpType `json:"type"`

	// Endpoint is the service path the request targets.
	Endpoint string `json:"endpoint"`

	// Payload is the exact request body captured at failure time.
	Payload json.RawMessage `json:"payload"`

	// SessionID ties the operation to its editing session.
	SessionID string `json:"session_id"`

	// QueuedAt is when the operation entered the queue. Used to discard
	// snapshot saves that a newer successful save has already superseded.
	QueuedAt time.Time `json:"queued_at"`
}
