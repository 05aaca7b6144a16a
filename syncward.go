// Package syncward provides a client-side write-synchronization engine for
// review-workflow tools: it coalesces field edits into debounced,
// rate-limited, serialized batch saves; survives flaky connectivity with a
// durable, precondition-checked replay queue; and gates all writes on the
// server-authoritative review state machine.
//
// Example usage:
//
//	cfg := syncward.DefaultConfig()
//	cfg.ServiceURL = "https://review.example.com"
//	cfg.AuthKey = "your-api-key"
//	cfg.SessionID = "session-42"
//
//	eng, err := syncward.New(cfg, syncward.WithLogger(log.NewZerologAdapter()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	eng.Track("prompt", "")
//	_ = eng.OnFieldEdit("prompt", "updated content")
package syncward

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/reviewlab/syncward/internal/adapters/badgerstore"
	fsadapter "github.com/reviewlab/syncward/internal/adapters/fs"
	"github.com/reviewlab/syncward/internal/adapters/httpapi"
	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/engine"
	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
)

// Re-exported domain types, so embedders need not import internal packages.
type (
	// FieldStatus is the per-field sync status (saved/saving/unsaved/failed).
	FieldStatus = domain.FieldStatus

	// GlobalStatus is the aggregate status including locked and offline.
	GlobalStatus = domain.GlobalStatus

	// ReviewStatus is the server-side workflow status.
	ReviewStatus = domain.ReviewStatus

	// ReviewState is the cached authoritative workflow snapshot.
	ReviewState = domain.ReviewState

	// GradeDraft is one reviewable item's grade/explanation pair.
	GradeDraft = domain.GradeDraft
)

// Per-field statuses.
const (
	FieldSaved   = domain.FieldSaved
	FieldSaving  = domain.FieldSaving
	FieldUnsaved = domain.FieldUnsaved
	FieldFailed  = domain.FieldFailed
)

// Aggregate statuses.
const (
	StatusSaved   = domain.StatusSaved
	StatusSaving  = domain.StatusSaving
	StatusUnsaved = domain.StatusUnsaved
	StatusFailed  = domain.StatusFailed
	StatusLocked  = domain.StatusLocked
	StatusOffline = domain.StatusOffline
)

// Review workflow statuses.
const (
	ReviewDraft     = domain.ReviewDraft
	ReviewSubmitted = domain.ReviewSubmitted
	ReviewReturned  = domain.ReviewReturned
	ReviewApproved  = domain.ReviewApproved
	ReviewRejected  = domain.ReviewRejected
	ReviewEscalated = domain.ReviewEscalated
)

// Errors callers are expected to check with errors.Is.
var (
	ErrInvalidConfig        = domain.ErrInvalidConfig
	ErrLocked               = domain.ErrLocked
	ErrOffline              = domain.ErrOffline
	ErrValidation           = domain.ErrValidation
	ErrTransitionNotAllowed = domain.ErrTransitionNotAllowed
	ErrUnknownField         = domain.ErrUnknownField
	ErrAlreadyRunning       = domain.ErrAlreadyRunning
	ErrNotRunning           = domain.ErrNotRunning
)

// Engine is a per-session sync engine instance. Use New() to create one,
// Start() to begin syncing, and Stop() to tear it down with its session.
type Engine struct {
	config Config
	opts   options

	lifecycle *engine.Lifecycle
	conn      *engine.ConnectivityMonitor
	queue     *engine.WriteQueue
	saver     *engine.BatchSaver
	grading   *engine.GradingSaver
	review    *engine.ReviewSync
	store     ports.QueueStore
	ownsStore bool
	logger    log.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Engine with the given configuration.
// The instance is created in StateStopped; call Start() to begin syncing.
// Returns an error if configuration is invalid or the queue store cannot
// be opened.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	emitter := &eventEmitter{handler: o.eventHandler}

	client := httpapi.NewClient(cfg.ServiceURL, cfg.AuthKey, o.httpClient, logger)

	store := o.queueStore
	ownsStore := false
	if store == nil {
		s, err := badgerstore.Open(filepath.Join(cfg.StateDir, "queue"))
		if err != nil {
			return nil, err
		}
		store = s
		ownsStore = true
	}

	drafts := o.draftRepo
	if drafts == nil {
		drafts = fsadapter.NewDraftFileRepository(cfg.StateDir)
	}

	e := &Engine{
		config:    cfg,
		opts:      o,
		store:     store,
		ownsStore: ownsStore,
		logger:    logger,
	}

	e.lifecycle = engine.NewLifecycle(logger, emitter)
	e.conn = engine.NewConnectivityMonitor(cfg.AssumeOnline, logger)

	e.queue = engine.NewWriteQueue(engine.WriteQueueConfig{
		Store:     store,
		Client:    client,
		Conn:      e.conn,
		Clock:     o.clock,
		Logger:    logger,
		Metrics:   o.metrics,
		SessionID: cfg.SessionID,
		MaxSize:   cfg.MaxQueueSize,
		LastSave:  e.lastSaveFor,
	})

	e.review = engine.NewReviewSync(engine.ReviewSyncConfig{
		SessionID:    cfg.SessionID,
		PollInterval: cfg.ReviewPollInterval,
	}, client, e.queue, e.conn, logger, o.metrics, emitter)

	e.saver = engine.NewBatchSaver(engine.BatchSaverConfig{
		SessionID:     cfg.SessionID,
		Debounce:      cfg.Debounce,
		MinInterval:   cfg.MinSaveInterval,
		MaxRetries:    cfg.MaxRetries,
		RetryInitial:  cfg.RetryInitial,
		RetryMax:      cfg.RetryMax,
		MinContentLen: cfg.MinContentLen,
		MaxContentLen: cfg.MaxContentLen,
	}, client, e.queue, e.conn, e.review, o.clock, logger, o.metrics, emitter)

	e.grading = engine.NewGradingSaver(engine.GradingSaverConfig{
		SessionID:    cfg.SessionID,
		Debounce:     cfg.Debounce,
		MinInterval:  cfg.MinSaveInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryInitial: cfg.RetryInitial,
		RetryMax:     cfg.RetryMax,
	}, client, e.queue, e.conn, e.review, drafts, o.clock, logger, o.metrics, emitter)

	// Reconnection replays the queue.
	e.conn.OnChange(func(online bool) {
		if online {
			e.flushQueueAsync()
		}
	})

	return e, nil
}

// lastSaveFor feeds the queue's stale-save check from the savers.
func (e *Engine) lastSaveFor(t domain.OpType) time.Time {
	switch t {
	case domain.OpSaveCells:
		return e.saver.LastSaveTime()
	case domain.OpSaveGrades:
		return e.grading.LastSaveTime()
	default:
		return time.Time{}
	}
}

// Start begins syncing in the background.
// Returns an error if already running or if startup fails.
// The provided context bounds the lifetime of the sync operation.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := e.lifecycle.TransitionTo(engine.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.ctx = runCtx
	e.cancel = cancel
	e.lifecycle.SetCancel(cancel)

	e.saver.Start(runCtx)
	if err := e.grading.Start(runCtx); err != nil {
		e.logger.Error("grading saver startup failed", log.Err(err))
		cancel()
		_ = e.lifecycle.TransitionTo(engine.StateCrashed, "grading saver startup failed")
		return err
	}
	e.review.Start(runCtx)

	// Replay anything a previous process left behind. e.mu is already
	// held here, so skip the locking wrapper.
	if e.conn.Online() {
		e.flushQueue(runCtx)
	}

	return e.lifecycle.TransitionTo(engine.StateRunning, "engine started")
}

// Stop gracefully shuts down the engine: pending timers are canceled,
// in-flight sends complete naturally, and the queue store is closed.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (e *Engine) Stop() error {
	e.mu.Lock()

	if !e.lifecycle.CanStop() {
		e.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := e.lifecycle.TransitionTo(engine.StateStopping, "Stop() called"); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.review.Stop()
	e.saver.Stop()
	e.grading.Stop()

	err := e.lifecycle.WaitWithTimeout(engine.ShutdownTimeout)

	if e.ownsStore {
		if cerr := e.store.Close(); cerr != nil {
			e.logger.Error("close queue store", log.Err(cerr))
		}
	}

	if err != nil {
		_ = e.lifecycle.TransitionTo(engine.StateCrashed, "shutdown timeout")
	} else {
		_ = e.lifecycle.TransitionTo(engine.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (e *Engine) Status() State {
	return convertState(e.lifecycle.State())
}

// Track registers a field whose current value is considered saved.
func (e *Engine) Track(id, value string) {
	e.saver.Track(id, value)
}

// OnFieldEdit records a user edit to a tracked field and schedules a
// debounced batch save. Returns ErrLocked while the review status forbids
// edits and ErrValidation when the content fails local validation.
func (e *Engine) OnFieldEdit(id, value string) error {
	return e.saver.OnFieldEdit(id, value)
}

// OnGradeEdit records a grade/explanation edit for one reviewable item.
// The draft is persisted locally before the method returns.
func (e *Engine) OnGradeEdit(itemID string, draft GradeDraft) error {
	return e.grading.OnGradeEdit(itemID, draft)
}

// OnConnectivityChanged reports an online/offline transition observed by
// the host. Transitions to online trigger a replay of the durable queue.
func (e *Engine) OnConnectivityChanged(online bool) {
	e.conn.SetOnline(online)
}

// OnVisibilityChanged reports a UI visibility transition. While hidden the
// review-state poller is paused entirely.
func (e *Engine) OnVisibilityChanged(visible bool) {
	e.review.SetVisible(visible)
}

// SubmitForReview requests the draft -> submitted transition.
func (e *Engine) SubmitForReview(ctx context.Context) error {
	return e.review.SubmitForReview(ctx)
}

// Resubmit requests the returned -> submitted transition.
func (e *Engine) Resubmit(ctx context.Context) error {
	return e.review.Resubmit(ctx)
}

// RetryFailed re-attempts saves that exhausted their retries while online.
// Bound to the clickable failed-status affordance in the UI.
func (e *Engine) RetryFailed() {
	e.saver.RetryFailed()
	e.grading.RetryFailed()
}

// FlushNow saves immediately, bypassing the debounce delay. Used for
// explicit user-initiated saves.
func (e *Engine) FlushNow() {
	e.saver.FlushNow()
}

// GlobalStatus returns the aggregate sync status for the presentation layer.
func (e *Engine) GlobalStatus() GlobalStatus {
	return e.saver.GlobalStatus()
}

// FieldStatus returns the status of one tracked field.
func (e *Engine) FieldStatus(id string) (FieldStatus, bool) {
	return e.saver.FieldStatus(id)
}

// ItemStatus returns the sync status of one grading draft.
func (e *Engine) ItemStatus(itemID string) (FieldStatus, bool) {
	return e.grading.ItemStatus(itemID)
}

// ReviewState returns the cached authoritative review state.
func (e *Engine) ReviewState() ReviewState {
	return e.review.Current()
}

// Document returns the canonical mirror of the last saved field values,
// for consistent full-document exports.
func (e *Engine) Document() map[string]string {
	return e.saver.Document()
}

// QueueDepth returns the number of operations awaiting replay.
func (e *Engine) QueueDepth(ctx context.Context) (int, error) {
	return e.queue.Count(ctx)
}

// flushQueueAsync replays the durable queue on a worker goroutine tracked
// by the lifecycle, so Stop waits for it.
func (e *Engine) flushQueueAsync() {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	e.flushQueue(ctx)
}

// flushQueue is the body of flushQueueAsync, for callers that already hold
// e.mu and have the run context in hand.
func (e *Engine) flushQueue(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}

	e.lifecycle.AddWorker()
	go func() {
		defer e.lifecycle.WorkerDone()
		if err := e.queue.Flush(ctx); err != nil {
			e.logger.Warn("queue flush failed", log.Err(err))
		}
	}()
}

// State represents the lifecycle state of an Engine.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

func convertState(s engine.State) State {
	switch s {
	case engine.StateStopped:
		return StateStopped
	case engine.StateStarting:
		return StateStarting
	case engine.StateRunning:
		return StateRunning
	case engine.StateStopping:
		return StateStopping
	case engine.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
