package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
	"github.com/reviewlab/syncward/pkg/metrics"
)

// GradingSaverConfig configures a GradingSaver.
type GradingSaverConfig struct {
	SessionID    string
	Debounce     time.Duration
	MinInterval  time.Duration
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c *GradingSaverConfig) setDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
}

// GradingSaver synchronizes per-item grade/explanation drafts. Every edit is
// persisted to the local draft repository synchronously before any network
// activity, so a reload never silently loses a grade; the remote sync then
// follows the same debounce, retry and durable-queue path as the batch
// saver. Results merge into a shared map keyed by item id rather than
// overwriting the whole map.
type GradingSaver struct {
	cfg     GradingSaverConfig
	client  ports.ServiceClient
	queue   *WriteQueue
	conn    ports.Connectivity
	review  ports.ReviewStateProvider
	drafts  ports.DraftRepository
	clock   ports.Clock
	logger  log.Logger
	metrics *metrics.Metrics
	emitter SaveEventEmitter

	mu           sync.Mutex
	ctx          context.Context
	reviews      map[string]domain.GradeDraft
	statuses     map[string]domain.FieldStatus
	gen          map[string]uint64 // bumped per edit, to detect in-flight overlap
	timer        ports.Timer
	sending      bool
	pendingFlush bool
	lastSaveTime time.Time
	retryArmed   bool
	stopped      bool

	wg sync.WaitGroup
}

// NewGradingSaver creates a grading saver.
func NewGradingSaver(
	cfg GradingSaverConfig,
	client ports.ServiceClient,
	queue *WriteQueue,
	conn ports.Connectivity,
	review ports.ReviewStateProvider,
	drafts ports.DraftRepository,
	clock ports.Clock,
	logger log.Logger,
	m *metrics.Metrics,
	emitter SaveEventEmitter,
) *GradingSaver {
	cfg.setDefaults()
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &GradingSaver{
		cfg:      cfg,
		client:   client,
		queue:    queue,
		conn:     conn,
		review:   review,
		drafts:   drafts,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		emitter:  emitter,
		reviews:  make(map[string]domain.GradeDraft),
		statuses: make(map[string]domain.FieldStatus),
		gen:      make(map[string]uint64),
	}
}

// Start binds the saver to its session lifetime context and reloads any
// drafts persisted by a previous process. Reloaded drafts are treated as
// unsynced and scheduled for a flush.
func (s *GradingSaver) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx

	if s.drafts == nil {
		return nil
	}
	loaded, err := s.drafts.Load(ctx)
	if err != nil {
		return fmt.Errorf("load grading drafts: %w", err)
	}
	for itemID, draft := range loaded {
		if _, ok := s.reviews[itemID]; ok {
			continue
		}
		s.reviews[itemID] = draft
		s.statuses[itemID] = domain.FieldUnsaved
		s.emitItem(itemID, domain.FieldUnsaved)
	}
	if len(loaded) > 0 && !(s.review != nil && s.review.IsLocked()) {
		s.scheduleFlushLocked()
	}
	return nil
}

// Stop cancels any pending flush and waits for an in-flight send.
func (s *GradingSaver) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// OnGradeEdit records a grade/explanation edit for one item. The draft is
// persisted locally before the method returns; the remote sync is scheduled
// unless the review status is locked, in which case ErrLocked is returned
// and only the local snapshot is kept.
func (s *GradingSaver) OnGradeEdit(itemID string, draft domain.GradeDraft) error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}

	s.reviews[itemID] = draft
	s.statuses[itemID] = domain.FieldUnsaved
	s.emitItem(itemID, domain.FieldUnsaved)
	s.gen[itemID]++
	snapshot := s.snapshotLocked()

	locked := s.review != nil && s.review.IsLocked()
	if !locked {
		s.scheduleFlushLocked()
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Unlock()

	// Synchronous local persist: a reload must never lose a grade.
	if s.drafts != nil {
		if err := s.drafts.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("persist grading draft: %w", err)
		}
	}

	if locked {
		return domain.ErrLocked
	}
	return nil
}

// ItemStatus returns the sync status of one item's draft.
func (s *GradingSaver) ItemStatus(itemID string) (domain.FieldStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[itemID]
	return status, ok
}

// Draft returns the current draft for an item.
func (s *GradingSaver) Draft(itemID string) (domain.GradeDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.reviews[itemID]
	return d, ok
}

// LastSaveTime returns when the last grading save succeeded, zero if none.
func (s *GradingSaver) LastSaveTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveTime
}

// RetryFailed re-attempts a grading save after exhausted retries.
func (s *GradingSaver) RetryFailed() {
	s.mu.Lock()
	if !s.retryArmed || s.stopped {
		s.mu.Unlock()
		return
	}
	s.retryArmed = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.beginSendLocked()
	s.mu.Unlock()
}

func (s *GradingSaver) snapshotLocked() map[string]domain.GradeDraft {
	snap := make(map[string]domain.GradeDraft, len(s.reviews))
	for k, v := range s.reviews {
		snap[k] = v
	}
	return snap
}

func (s *GradingSaver) scheduleFlushLocked() {
	delay := s.cfg.Debounce
	if !s.lastSaveTime.IsZero() {
		if wait := s.cfg.MinInterval - s.clock.Now().Sub(s.lastSaveTime); wait > delay {
			delay = wait
		}
	}
	if s.timer != nil {
		s.timer.Reset(delay)
		return
	}
	s.timer = s.clock.AfterFunc(delay, s.onFlushTimer)
}

func (s *GradingSaver) onFlushTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	s.beginSendLocked()
}

func (s *GradingSaver) beginSendLocked() {
	if s.stopped {
		return
	}
	if s.sending {
		s.pendingFlush = true
		return
	}
	if s.review != nil && s.review.IsLocked() {
		return
	}

	snapshot := s.snapshotLocked()
	gens := make(map[string]uint64, len(s.gen))
	for k, v := range s.gen {
		gens[k] = v
	}
	for itemID := range snapshot {
		s.statuses[itemID] = domain.FieldSaving
		s.emitItem(itemID, domain.FieldSaving)
	}
	s.sending = true

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go s.performSend(ctx, snapshot, gens)
}

func (s *GradingSaver) performSend(ctx context.Context, snapshot map[string]domain.GradeDraft, gens map[string]uint64) {
	defer s.wg.Done()

	payload, err := json.Marshal(domain.SaveGradesRequest{
		Reviews:  snapshot,
		AutoSave: true,
	})
	if err != nil {
		s.logger.Error("marshal grading request", log.Err(err))
		s.finishSend(sendFailed, snapshot, gens, nil, err)
		return
	}

	endpoint := ports.SaveGradesEndpoint(s.cfg.SessionID)
	b := newBackoff(s.cfg.RetryInitial, s.cfg.RetryMax)
	attempts := s.cfg.MaxRetries + 1

	var lastErr error
	outcome := sendFailed
	for attempt := 0; attempt < attempts; attempt++ {
		if s.conn != nil && !s.conn.Online() {
			outcome = sendQueuedOffline
			break
		}

		err := s.client.Post(ctx, endpoint, payload)
		if err == nil || domain.IsConflict(err) {
			outcome = sendSaved
			lastErr = nil
			break
		}
		lastErr = err

		if ctx.Err() != nil {
			outcome = sendCanceled
			break
		}
		if !domain.IsRetryable(err) {
			break
		}
		if domain.IsNetworkError(err) && s.conn != nil && !s.conn.Online() {
			outcome = sendQueuedOffline
			break
		}
		if attempt == attempts-1 {
			break
		}

		s.metrics.RecordRetry()
		if werr := b.Wait(ctx); werr != nil {
			outcome = sendCanceled
			break
		}
	}

	s.finishSend(outcome, snapshot, gens, payload, lastErr)
}

func (s *GradingSaver) finishSend(outcome sendOutcome, snapshot map[string]domain.GradeDraft, gens map[string]uint64, payload []byte, sendErr error) {
	now := s.clock.Now()

	if outcome == sendQueuedOffline && s.queue != nil {
		op := domain.QueuedOp{
			Type:     domain.OpSaveGrades,
			Endpoint: ports.SaveGradesEndpoint(s.cfg.SessionID),
			Payload:  payload,
			QueuedAt: now,
		}
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.queue.Enqueue(ctx, op); err != nil {
			s.logger.Error("enqueue offline grading save", log.Err(err))
		}
	}

	s.mu.Lock()

	switch outcome {
	case sendSaved:
		s.lastSaveTime = now
		for itemID := range snapshot {
			if s.gen[itemID] == gens[itemID] {
				s.statuses[itemID] = domain.FieldSaved
			} else {
				s.statuses[itemID] = domain.FieldUnsaved
			}
			s.emitItem(itemID, s.statuses[itemID])
		}
		s.metrics.RecordSave("grades", "saved")
		s.logger.Info("saved grading drafts", log.Int("items", len(snapshot)))

	case sendQueuedOffline:
		for itemID := range snapshot {
			s.statuses[itemID] = domain.FieldUnsaved
			s.emitItem(itemID, domain.FieldUnsaved)
		}
		s.metrics.RecordSave("grades", "queued")

	case sendFailed:
		for itemID := range snapshot {
			s.statuses[itemID] = domain.FieldFailed
			s.emitItem(itemID, domain.FieldFailed)
		}
		s.retryArmed = true
		s.metrics.RecordSave("grades", "failed")
		s.logger.Error("grading save failed after retries, manual retry armed", log.Err(sendErr))

	case sendCanceled:
		for itemID := range snapshot {
			s.statuses[itemID] = domain.FieldUnsaved
			s.emitItem(itemID, domain.FieldUnsaved)
		}
	}

	s.sending = false
	pending := s.pendingFlush && !s.stopped && outcome != sendCanceled
	s.pendingFlush = false
	if pending {
		s.scheduleFlushLocked()
	}
	s.mu.Unlock()

	if s.emitter != nil {
		switch outcome {
		case sendSaved:
			s.emitter.OnSaveSuccess(len(snapshot), s.clock.Now().Sub(now))
		case sendQueuedOffline:
			// The connectivity short-circuit reaches here without an
			// attempt; handlers still get a concrete cause.
			if sendErr == nil {
				sendErr = domain.ErrOffline
			}
			s.emitter.OnSaveError(sendErr, true)
		case sendFailed:
			s.emitter.OnSaveError(sendErr, false)
		}
	}
}

func (s *GradingSaver) emitItem(itemID string, status domain.FieldStatus) {
	if s.emitter != nil {
		s.emitter.OnFieldStatus(itemID, status)
	}
}
