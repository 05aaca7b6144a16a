package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
	"github.com/reviewlab/syncward/pkg/metrics"
)

// DefaultMaxQueueSize bounds the durable write queue. Insertion beyond the
// bound evicts the oldest entry first.
const DefaultMaxQueueSize = 50

// WriteQueue is the durable, bounded FIFO of write operations that failed
// while offline. Operations are replayed in insertion order when
// connectivity returns, after per-operation precondition checks.
type WriteQueue struct {
	store     ports.QueueStore
	client    ports.ServiceClient
	conn      ports.Connectivity
	clock     ports.Clock
	logger    log.Logger
	metrics   *metrics.Metrics
	sessionID string
	maxSize   int

	// lastSave reports the time of the last successful live save for the
	// given operation type, so a queued snapshot a newer save has already
	// superseded is discarded instead of replayed. Nil disables the check.
	lastSave func(domain.OpType) time.Time

	// enqueueMu serializes the count/evict/append sequence. The batch
	// saver, the grading saver, and transition callers all enqueue from
	// their own goroutines; without it two enqueues at capacity evict the
	// same oldest entry and both append, overshooting maxSize.
	enqueueMu sync.Mutex

	flushing atomic.Bool
}

// WriteQueueConfig carries the collaborators and bounds for a WriteQueue.
type WriteQueueConfig struct {
	Store     ports.QueueStore
	Client    ports.ServiceClient
	Conn      ports.Connectivity
	Clock     ports.Clock
	Logger    log.Logger
	Metrics   *metrics.Metrics
	SessionID string
	MaxSize   int
	LastSave  func(domain.OpType) time.Time
}

// NewWriteQueue creates a write queue. MaxSize defaults to
// DefaultMaxQueueSize when zero or negative.
func NewWriteQueue(cfg WriteQueueConfig) *WriteQueue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &WriteQueue{
		store:     cfg.Store,
		client:    cfg.Client,
		conn:      cfg.Conn,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		sessionID: cfg.SessionID,
		maxSize:   cfg.MaxSize,
		lastSave:  cfg.LastSave,
	}
}

// Enqueue persists op, evicting the oldest entry first if the queue is at
// capacity. The op's QueuedAt and SessionID are filled in if unset.
func (q *WriteQueue) Enqueue(ctx context.Context, op domain.QueuedOp) error {
	if op.QueuedAt.IsZero() {
		op.QueuedAt = q.clock.Now()
	}
	if op.SessionID == "" {
		op.SessionID = q.sessionID
	}

	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	count, err := q.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count queue: %w", err)
	}

	for count >= q.maxSize {
		ops, err := q.store.List(ctx)
		if err != nil {
			return fmt.Errorf("list queue for eviction: %w", err)
		}
		if len(ops) == 0 {
			break
		}
		oldest := ops[0]
		if err := q.store.Delete(ctx, oldest.ID); err != nil {
			return fmt.Errorf("evict oldest op %d: %w", oldest.ID, err)
		}
		q.metrics.RecordEviction()
		q.logger.Warn("queue at capacity, evicted oldest operation",
			log.Uint64("op_id", oldest.ID),
			log.String("type", string(oldest.Type)),
		)
		count--
	}

	id, err := q.store.Append(ctx, op)
	if err != nil {
		return fmt.Errorf("append op: %w", err)
	}

	q.updateDepth(ctx)
	q.logger.Info("queued operation for replay",
		log.Uint64("op_id", id),
		log.String("type", string(op.Type)),
		log.String("endpoint", op.Endpoint),
	)
	return nil
}

// Count returns the number of queued operations.
func (q *WriteQueue) Count(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// Flush replays queued operations in insertion order. Flushes are mutually
// exclusive; a call while another flush is running returns immediately.
//
// Per operation: replay preconditions that no longer hold discard the op
// without sending; a 2xx or 409 response deletes it; a 5xx response halts
// the whole loop, preserving the remaining queue for the next trigger; other
// client errors drop the op. Going offline mid-flush also halts the loop.
func (q *WriteQueue) Flush(ctx context.Context) error {
	if !q.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer q.flushing.Store(false)
	defer q.updateDepth(ctx)

	ops, err := q.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}

	for _, op := range ops {
		if !q.conn.Online() {
			q.logger.Info("offline during flush, preserving remaining queue")
			return nil
		}

		ok, err := q.canReplay(ctx, op)
		if err != nil {
			q.logger.Warn("precondition check failed, preserving queue", log.Err(err))
			return err
		}
		if !ok {
			if err := q.store.Delete(ctx, op.ID); err != nil {
				return fmt.Errorf("delete stale op %d: %w", op.ID, err)
			}
			continue
		}

		err = q.client.Post(ctx, op.Endpoint, op.Payload)
		switch {
		case err == nil || domain.IsConflict(err):
			// Conflict means the end state is already achieved.
			if derr := q.store.Delete(ctx, op.ID); derr != nil {
				return fmt.Errorf("delete replayed op %d: %w", op.ID, derr)
			}
			q.metrics.RecordReplay()
			q.logger.Info("replayed queued operation",
				log.Uint64("op_id", op.ID),
				log.String("type", string(op.Type)),
				log.Bool("conflict", domain.IsConflict(err)),
			)

		case domain.IsServerError(err) || domain.IsNetworkError(err):
			q.logger.Warn("replay failed, preserving remaining queue",
				log.Uint64("op_id", op.ID),
				log.Err(err),
			)
			return nil

		default:
			// Non-retryable client error: the op can never succeed.
			if derr := q.store.Delete(ctx, op.ID); derr != nil {
				return fmt.Errorf("delete rejected op %d: %w", op.ID, derr)
			}
			q.metrics.RecordDiscard("client_error")
			q.logger.Warn("dropped queued operation rejected by server",
				log.Uint64("op_id", op.ID),
				log.Err(err),
			)
		}
	}

	return nil
}

// canReplay checks whether the precondition the op depended on still holds.
// Transition requests require the review status they were enqueued under;
// snapshot saves are stale once a newer live save has succeeded.
func (q *WriteQueue) canReplay(ctx context.Context, op domain.QueuedOp) (bool, error) {
	switch op.Type {
	case domain.OpSubmitForReview, domain.OpResubmit:
		state, err := q.client.FetchReviewState(ctx, op.SessionID)
		if err != nil {
			return false, fmt.Errorf("fetch review state: %w", err)
		}
		if !state.Status.AllowsReplay(op.Type) {
			q.metrics.RecordDiscard("precondition")
			q.logger.Info("discarding queued transition, precondition no longer holds",
				log.Uint64("op_id", op.ID),
				log.String("type", string(op.Type)),
				log.String("status", string(state.Status)),
			)
			return false, nil
		}
		return true, nil

	case domain.OpSaveCells, domain.OpSaveGrades:
		if q.lastSave == nil {
			return true, nil
		}
		if last := q.lastSave(op.Type); !last.IsZero() && last.After(op.QueuedAt) {
			q.metrics.RecordDiscard("stale")
			q.logger.Info("discarding queued save superseded by newer save",
				log.Uint64("op_id", op.ID),
				log.Time("queued_at", op.QueuedAt),
				log.Time("last_save", last),
			)
			return false, nil
		}
		return true, nil

	default:
		return true, nil
	}
}

func (q *WriteQueue) updateDepth(ctx context.Context) {
	if n, err := q.store.Count(ctx); err == nil {
		q.metrics.SetQueueDepth(n)
	}
}
