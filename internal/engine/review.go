package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
	"github.com/reviewlab/syncward/pkg/metrics"
)

// DefaultReviewPollInterval is how often the authoritative review state is
// refreshed while the UI is visible.
const DefaultReviewPollInterval = 15 * time.Second

// ReviewEventEmitter receives authoritative review-state updates.
type ReviewEventEmitter interface {
	OnReviewState(state domain.ReviewState)
}

// ReviewSyncConfig configures a ReviewSync.
type ReviewSyncConfig struct {
	SessionID    string
	PollInterval time.Duration
}

// ReviewSync keeps a read-only cached copy of the server-owned workflow
// state, refreshed through a visibility-aware poller, and requests
// transitions on the user's behalf. Transitions themselves happen
// server-side; the cached can* booleans are never re-derived locally.
//
// ReviewSync implements ports.ReviewStateProvider for the savers' gating.
type ReviewSync struct {
	cfg     ReviewSyncConfig
	client  ports.ServiceClient
	queue   *WriteQueue
	conn    ports.Connectivity
	logger  log.Logger
	metrics *metrics.Metrics
	emitter ReviewEventEmitter

	mu    sync.RWMutex
	state domain.ReviewState
	known bool

	poller *Poller
}

// NewReviewSync creates a review-state synchronizer.
func NewReviewSync(
	cfg ReviewSyncConfig,
	client ports.ServiceClient,
	queue *WriteQueue,
	conn ports.Connectivity,
	logger log.Logger,
	m *metrics.Metrics,
	emitter ReviewEventEmitter,
) *ReviewSync {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultReviewPollInterval
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &ReviewSync{
		cfg:     cfg,
		client:  client,
		queue:   queue,
		conn:    conn,
		logger:  logger,
		metrics: m,
		emitter: emitter,
	}
}

// Start begins polling the review-status endpoint. The first fetch happens
// immediately.
func (r *ReviewSync) Start(ctx context.Context) {
	r.poller = NewPoller(r.refresh, r.cfg.PollInterval)
	r.poller.Start(ctx)
}

// Stop halts polling and waits for any in-progress refresh to finish.
func (r *ReviewSync) Stop() {
	if r.poller != nil {
		r.poller.Stop()
	}
}

// SetVisible forwards a visibility transition to the poller: hidden stops
// polling entirely, visible refreshes immediately and resumes the interval.
func (r *ReviewSync) SetVisible(visible bool) {
	if r.poller != nil {
		r.poller.SetVisible(visible)
	}
}

// IsLocked reports whether the cached review status forbids edits.
// Before the first successful fetch the session is treated as unlocked;
// the server still rejects writes it does not permit.
func (r *ReviewSync) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known && r.state.Locked()
}

// Current returns the cached review state snapshot.
func (r *ReviewSync) Current() domain.ReviewState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Refresh fetches the authoritative state once, outside the polling cadence.
func (r *ReviewSync) Refresh(ctx context.Context) error {
	state, err := r.client.FetchReviewState(ctx, r.cfg.SessionID)
	if err != nil {
		return fmt.Errorf("fetch review state: %w", err)
	}
	r.apply(state)
	return nil
}

// refresh is the poller task; fetch failures are logged, the cached state is
// kept until the next tick.
func (r *ReviewSync) refresh(ctx context.Context) {
	if r.conn != nil && !r.conn.Online() {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("review state refresh failed", log.Err(err))
	}
}

func (r *ReviewSync) apply(state domain.ReviewState) {
	r.mu.Lock()
	changed := !r.known || state != r.state
	r.state = state
	r.known = true
	r.mu.Unlock()

	if !changed {
		return
	}
	r.logger.Info("review state updated",
		log.String("status", string(state.Status)),
		log.Int("round", state.Round),
		log.Int("max_rounds", state.MaxRounds),
	)
	if r.emitter != nil {
		r.emitter.OnReviewState(state)
	}
}

// SubmitForReview requests the draft -> submitted transition. While offline
// the request is queued with its precondition recorded, so it is discarded
// rather than replayed if the status advances through another path first.
func (r *ReviewSync) SubmitForReview(ctx context.Context) error {
	r.mu.RLock()
	state, known := r.state, r.known
	r.mu.RUnlock()

	if known && (state.Status != domain.ReviewDraft || !state.CanSubmit) {
		return fmt.Errorf("%w: status %s", domain.ErrTransitionNotAllowed, state.Status)
	}
	return r.requestTransition(ctx, domain.OpSubmitForReview, ports.SubmitForReviewEndpoint(r.cfg.SessionID))
}

// Resubmit requests the returned -> submitted transition. The server owns
// the round arithmetic, including escalation at the final round.
func (r *ReviewSync) Resubmit(ctx context.Context) error {
	r.mu.RLock()
	state, known := r.state, r.known
	r.mu.RUnlock()

	if known && (state.Status != domain.ReviewReturned || !state.CanResubmit) {
		return fmt.Errorf("%w: status %s", domain.ErrTransitionNotAllowed, state.Status)
	}
	return r.requestTransition(ctx, domain.OpResubmit, ports.ResubmitEndpoint(r.cfg.SessionID))
}

func (r *ReviewSync) requestTransition(ctx context.Context, op domain.OpType, endpoint string) error {
	r.metrics.RecordTransition(string(op))

	payload := []byte("{}")

	if r.conn != nil && !r.conn.Online() {
		if r.queue == nil {
			return fmt.Errorf("syncward: offline and no queue configured for %s", op)
		}
		return r.queue.Enqueue(ctx, domain.QueuedOp{
			Type:     op,
			Endpoint: endpoint,
			Payload:  payload,
		})
	}

	err := r.client.Post(ctx, endpoint, payload)
	if err != nil && !domain.IsConflict(err) {
		return fmt.Errorf("request %s: %w", op, err)
	}

	// Pick up the new status right away instead of waiting for the poller.
	if rerr := r.Refresh(ctx); rerr != nil {
		r.logger.Warn("refresh after transition failed", log.Err(rerr))
	}
	return nil
}
