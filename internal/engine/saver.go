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

// Default batch saver intervals.
const (
	DefaultDebounce    = 2 * time.Second
	DefaultMinInterval = 5 * time.Second
)

// SaveEventEmitter receives save outcomes and status changes for the
// presentation layer. Callbacks run synchronously, possibly while the saver
// holds internal locks; they must not call back into the engine.
type SaveEventEmitter interface {
	OnGlobalStatus(status domain.GlobalStatus)
	OnFieldStatus(fieldID string, status domain.FieldStatus)
	OnSaveSuccess(fieldCount int, duration time.Duration)
	OnSaveError(err error, queued bool)
}

// BatchSaverConfig configures a BatchSaver.
type BatchSaverConfig struct {
	SessionID string

	// Debounce is how long input must quiesce before a flush fires.
	Debounce time.Duration

	// MinInterval is the minimum spacing between two saves. The flush delay
	// is max(Debounce, MinInterval - elapsedSinceLastSave).
	MinInterval time.Duration

	// MaxRetries caps retries of transient failures per send.
	MaxRetries int

	RetryInitial time.Duration
	RetryMax     time.Duration

	// MinContentLen/MaxContentLen bound accepted content length.
	// Zero MaxContentLen disables the upper bound.
	MinContentLen int
	MaxContentLen int
}

func (c *BatchSaverConfig) setDefaults() {
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

// BatchSaver coalesces edits to tracked fields into one rate-limited,
// retried, serialized save request carrying the full current value of every
// tracked field. Failures while offline are handed to the write queue;
// exhausted retries while online mark fields failed and arm a manual retry.
type BatchSaver struct {
	cfg     BatchSaverConfig
	client  ports.ServiceClient
	queue   *WriteQueue
	conn    ports.Connectivity
	review  ports.ReviewStateProvider
	clock   ports.Clock
	logger  log.Logger
	metrics *metrics.Metrics
	emitter SaveEventEmitter

	mu           sync.Mutex
	ctx          context.Context
	fields       map[string]*domain.Field
	order        []string
	document     map[string]string
	timer        ports.Timer
	sending      bool
	pendingFlush bool
	lastSaveTime time.Time
	retryArmed   bool
	global       domain.GlobalStatus
	stopped      bool

	wg sync.WaitGroup
}

// NewBatchSaver creates a batch saver. The queue may be nil only in tests
// that never go offline.
func NewBatchSaver(
	cfg BatchSaverConfig,
	client ports.ServiceClient,
	queue *WriteQueue,
	conn ports.Connectivity,
	review ports.ReviewStateProvider,
	clock ports.Clock,
	logger log.Logger,
	m *metrics.Metrics,
	emitter SaveEventEmitter,
) *BatchSaver {
	cfg.setDefaults()
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &BatchSaver{
		cfg:      cfg,
		client:   client,
		queue:    queue,
		conn:     conn,
		review:   review,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		emitter:  emitter,
		fields:   make(map[string]*domain.Field),
		document: make(map[string]string),
		global:   domain.StatusSaved,
	}
}

// Start binds the saver to its session lifetime context.
func (s *BatchSaver) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
}

// Stop cancels any pending flush timer and waits for an in-flight send to
// complete naturally. No new flushes are scheduled afterwards.
func (s *BatchSaver) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Track registers a field with its last-known-saved value. Tracked fields
// live for the whole session; the full set is carried by every save.
func (s *BatchSaver) Track(id, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fields[id]; ok {
		return
	}
	s.fields[id] = &domain.Field{
		ID:     id,
		Value:  value,
		Status: domain.FieldSaved,
	}
	s.order = append(s.order, id)
	s.document[id] = value
}

// OnFieldEdit records a user edit and schedules a flush. While the review
// status is locked no flush is scheduled and ErrLocked is returned; the edit
// itself is kept locally. Content outside the configured length bounds
// returns ErrValidation and is never sent.
func (s *BatchSaver) OnFieldEdit(id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return domain.ErrNotRunning
	}
	field, ok := s.fields[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownField, id)
	}

	if len(value) < s.cfg.MinContentLen ||
		(s.cfg.MaxContentLen > 0 && len(value) > s.cfg.MaxContentLen) {
		return fmt.Errorf("%w: field %s length %d outside [%d, %d]",
			domain.ErrValidation, id, len(value), s.cfg.MinContentLen, s.cfg.MaxContentLen)
	}

	field.Value = value
	field.Status = domain.FieldUnsaved
	s.emitField(id, domain.FieldUnsaved)

	if s.review != nil && s.review.IsLocked() {
		s.setGlobalLocked(domain.StatusLocked)
		return domain.ErrLocked
	}

	s.setGlobalLocked(domain.StatusUnsaved)
	s.scheduleFlushLocked()
	return nil
}

// FlushNow triggers an immediate flush, bypassing the debounce delay.
// Used by the manual-retry affordance and explicit user saves.
func (s *BatchSaver) FlushNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.retryArmed = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.beginSendLocked()
}

// RetryFailed re-attempts a save after exhausted retries. It does nothing
// unless a failure armed the retry affordance.
func (s *BatchSaver) RetryFailed() {
	s.mu.Lock()
	armed := s.retryArmed
	s.mu.Unlock()
	if armed {
		s.FlushNow()
	}
}

// RetryArmed reports whether a failed save is waiting on a manual retry.
func (s *BatchSaver) RetryArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryArmed
}

// LastSaveTime returns when the last save succeeded, zero if none has.
func (s *BatchSaver) LastSaveTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveTime
}

// FieldStatus returns the status of one tracked field.
func (s *BatchSaver) FieldStatus(id string) (domain.FieldStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	if !ok {
		return 0, false
	}
	return f.Status, true
}

// GlobalStatus returns the aggregate status for the presentation layer.
// Connectivity and lock state override the field-derived status.
func (s *BatchSaver) GlobalStatus() domain.GlobalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalLocked()
}

// Document returns a copy of the canonical document mirror: the last
// successfully saved value of every tracked field. Exports built from it
// stay consistent with what the server holds.
func (s *BatchSaver) Document() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make(map[string]string, len(s.document))
	for k, v := range s.document {
		doc[k] = v
	}
	return doc
}

func (s *BatchSaver) globalLocked() domain.GlobalStatus {
	if s.conn != nil && !s.conn.Online() && s.global != domain.StatusSaved {
		return domain.StatusOffline
	}
	if s.review != nil && s.review.IsLocked() {
		return domain.StatusLocked
	}
	return s.global
}

// scheduleFlushLocked arms or re-arms the flush timer. The delay is the
// debounce interval, stretched so that two saves are never closer together
// than MinInterval. Caller holds s.mu.
func (s *BatchSaver) scheduleFlushLocked() {
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

func (s *BatchSaver) onFlushTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	s.beginSendLocked()
}

// beginSendLocked starts a send if one is not already in flight; otherwise
// the flush is deferred until the in-flight send completes. Caller holds s.mu.
func (s *BatchSaver) beginSendLocked() {
	if s.stopped {
		return
	}
	if s.sending {
		s.pendingFlush = true
		return
	}
	if s.review != nil && s.review.IsLocked() {
		s.setGlobalLocked(domain.StatusLocked)
		return
	}

	// Full snapshot of every tracked field, in tracking order.
	cells := make([]domain.Cell, 0, len(s.order))
	sent := make(map[string]string, len(s.order))
	for _, id := range s.order {
		f := s.fields[id]
		cells = append(cells, domain.Cell{Type: f.ID, Content: f.Value})
		sent[id] = f.Value
		f.Status = domain.FieldSaving
		s.emitField(id, domain.FieldSaving)
	}

	s.sending = true
	s.setGlobalLocked(domain.StatusSaving)

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go s.performSend(ctx, cells, sent)
}

type sendOutcome int

const (
	sendSaved sendOutcome = iota
	sendQueuedOffline
	sendFailed
	sendCanceled
)

// performSend issues the save with retry and applies the outcome.
// Runs on its own goroutine; exactly one instance is alive at a time.
func (s *BatchSaver) performSend(ctx context.Context, cells []domain.Cell, sent map[string]string) {
	defer s.wg.Done()

	payload, err := json.Marshal(domain.SaveCellsRequest{Cells: cells})
	if err != nil {
		// Cells are plain strings; this cannot happen in practice.
		s.logger.Error("marshal save request", log.Err(err))
		s.finishSend(sendFailed, sent, nil, err)
		return
	}

	endpoint := ports.SaveCellsEndpoint(s.cfg.SessionID)
	start := s.clock.Now()
	outcome, sendErr := s.attemptWithRetry(ctx, endpoint, payload)

	if outcome == sendSaved {
		s.logger.Info("saved batch",
			log.Int("fields", len(cells)),
			log.Duration("duration", s.clock.Now().Sub(start)),
		)
	}
	s.finishSend(outcome, sent, payload, sendErr)
}

// attemptWithRetry sends the payload, retrying transient failures up to the
// configured cap with escalating delays. Offline failures short-circuit to
// the queueing outcome without burning retries.
func (s *BatchSaver) attemptWithRetry(ctx context.Context, endpoint string, payload []byte) (sendOutcome, error) {
	b := newBackoff(s.cfg.RetryInitial, s.cfg.RetryMax)
	attempts := s.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if s.conn != nil && !s.conn.Online() {
			return sendQueuedOffline, lastErr
		}

		err := s.client.Post(ctx, endpoint, payload)
		if err == nil || domain.IsConflict(err) {
			return sendSaved, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return sendCanceled, ctx.Err()
		}
		if !domain.IsRetryable(err) {
			return sendFailed, err
		}
		if domain.IsNetworkError(err) && s.conn != nil && !s.conn.Online() {
			return sendQueuedOffline, err
		}
		if attempt == attempts-1 {
			break
		}

		s.metrics.RecordRetry()
		s.logger.Warn("save failed, retrying",
			log.Int("attempt", attempt+1),
			log.Err(err),
		)
		if werr := b.Wait(ctx); werr != nil {
			return sendCanceled, werr
		}
	}
	return sendFailed, lastErr
}

// finishSend applies the outcome of a completed send and releases the
// in-flight slot, scheduling a deferred flush if edits arrived meanwhile.
func (s *BatchSaver) finishSend(outcome sendOutcome, sent map[string]string, payload []byte, sendErr error) {
	now := s.clock.Now()

	// Offline queueing happens before taking s.mu: Enqueue touches the store.
	if outcome == sendQueuedOffline && s.queue != nil {
		op := domain.QueuedOp{
			Type:     domain.OpSaveCells,
			Endpoint: ports.SaveCellsEndpoint(s.cfg.SessionID),
			Payload:  payload,
			QueuedAt: now,
		}
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.queue.Enqueue(ctx, op); err != nil {
			s.logger.Error("enqueue offline save", log.Err(err))
		}
	}

	s.mu.Lock()

	switch outcome {
	case sendSaved:
		s.lastSaveTime = now
		for id, value := range sent {
			f := s.fields[id]
			s.document[id] = value
			if f.Value == value {
				f.Status = domain.FieldSaved
				f.LastSavedAt = now
			} else {
				// Edited again while the send was in flight.
				f.Status = domain.FieldUnsaved
			}
			s.emitField(id, f.Status)
		}
		s.metrics.RecordSave("cells", "saved")

	case sendQueuedOffline:
		// Resolution is expected once reconnected: unsaved, never failed.
		for id := range sent {
			s.fields[id].Status = domain.FieldUnsaved
			s.emitField(id, domain.FieldUnsaved)
		}
		s.metrics.RecordSave("cells", "queued")

	case sendFailed:
		for id := range sent {
			s.fields[id].Status = domain.FieldFailed
			s.emitField(id, domain.FieldFailed)
		}
		s.retryArmed = true
		s.metrics.RecordSave("cells", "failed")
		s.logger.Error("save failed after retries, manual retry armed", log.Err(sendErr))

	case sendCanceled:
		for id := range sent {
			s.fields[id].Status = domain.FieldUnsaved
			s.emitField(id, domain.FieldUnsaved)
		}
	}

	s.sending = false
	s.recomputeGlobalLocked()

	pending := s.pendingFlush && !s.stopped && outcome != sendCanceled
	s.pendingFlush = false
	if pending {
		s.scheduleFlushLocked()
	}
	s.mu.Unlock()

	if s.emitter != nil {
		switch outcome {
		case sendSaved:
			s.emitter.OnSaveSuccess(len(sent), s.clock.Now().Sub(now))
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

// recomputeGlobalLocked derives the field-level aggregate. Caller holds s.mu.
func (s *BatchSaver) recomputeGlobalLocked() {
	global := domain.StatusSaved
	for _, f := range s.fields {
		switch f.Status {
		case domain.FieldFailed:
			s.setGlobalLocked(domain.StatusFailed)
			return
		case domain.FieldSaving:
			global = domain.StatusSaving
		case domain.FieldUnsaved:
			if global != domain.StatusSaving {
				global = domain.StatusUnsaved
			}
		}
	}
	s.setGlobalLocked(global)
}

func (s *BatchSaver) setGlobalLocked(status domain.GlobalStatus) {
	if s.global == status {
		return
	}
	s.global = status
	if s.emitter != nil {
		s.emitter.OnGlobalStatus(status)
	}
}

func (s *BatchSaver) emitField(id string, status domain.FieldStatus) {
	if s.emitter != nil {
		s.emitter.OnFieldStatus(id, status)
	}
}
