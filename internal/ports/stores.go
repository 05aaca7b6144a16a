package ports

import (
	"context"

	"github.com/reviewlab/syncward/internal/domain"
)

// QueueStore is the durable local store backing the write queue. It survives
// process restarts. The capacity bound is enforced by the write queue, not
// the store.
type QueueStore interface {
	// Append persists op and returns the assigned monotonic id.
	Append(ctx context.Context, op domain.QueuedOp) (uint64, error)

	// List returns all queued operations in insertion order.
	List(ctx context.Context) ([]domain.QueuedOp, error)

	// Delete removes the operation with the given id. Deleting an id that
	// is no longer present is not an error.
	Delete(ctx context.Context, id uint64) error

	// Count returns the number of queued operations.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying store.
	Close() error
}

// DraftRepository persists grading drafts synchronously so a restart never
// silently loses a grade. Implementations must write atomically.
type DraftRepository interface {
	// Load retrieves the persisted drafts, keyed by item id.
	// Returns an empty map and nil error if nothing has been persisted.
	Load(ctx context.Context) (map[string]domain.GradeDraft, error)

	// Save persists the full draft map atomically.
	Save(ctx context.Context, drafts map[string]domain.GradeDraft) error
}
