package domain

import "time"

// FieldStatus describes the synchronization state of a single tracked field.
type FieldStatus int

const (
	// FieldSaved means the field's current value matches the last successful save.
	FieldSaved FieldStatus = iota

	// FieldSaving means a save carrying this field's value is in flight.
	FieldSaving

	// FieldUnsaved means the field has local edits not yet sent, or edits
	// whose send is expected to resolve later (queued while offline).
	FieldUnsaved

	// FieldFailed means a send carrying this field exhausted its retries
	// while online. Resolution requires an explicit manual retry.
	FieldFailed
)

// String returns a human-readable representation of the field status.
func (s FieldStatus) String() string {
	switch s {
	case FieldSaved:
		return "saved"
	case FieldSaving:
		return "saving"
	case FieldUnsaved:
		return "unsaved"
	case FieldFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// GlobalStatus is the single aggregate status exposed to the presentation
// layer. It extends the per-field statuses with locked and offline.
type GlobalStatus int

const (
	StatusSaved GlobalStatus = iota
	StatusSaving
	StatusUnsaved
	StatusFailed
	StatusLocked
	StatusOffline
)

// String returns a human-readable representation of the global status.
func (s GlobalStatus) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusSaving:
		return "saving"
	case StatusUnsaved:
		return "unsaved"
	case StatusFailed:
		return "failed"
	case StatusLocked:
		return "locked"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Field is a tracked editable field within a session. Fields are created when
// an input is wired and live for the whole session; edits and save outcomes
// mutate Value, Status and LastSavedAt.
type Field struct {
	// ID identifies the field within its session (also the wire cell type).
	ID string

	// Value is the current local value, which may be ahead of the server.
	Value string

	// Status is the field's synchronization state.
	Status FieldStatus

	// LastSavedAt is the time of the last successful save carrying this field.
	LastSavedAt time.Time
}

// Cell is the wire representation of one field in a batch save request.
type Cell struct {
	Type    string `json:"cell_type"`
	Content string `json:"content"`
}
