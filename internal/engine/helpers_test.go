package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
)

// fakeClient implements ports.ServiceClient for testing. Responses for Post
// are consumed from errs in call order; a nil entry (or an exhausted slice)
// means success. block, when non-nil, is received from before each Post
// returns, so tests can hold a send in flight.
type fakeClient struct {
	mu       sync.Mutex
	posts    []postCall
	errs     []error
	inFlight int
	maxInFly int

	block chan struct{}

	state    domain.ReviewState
	stateErr error
	fetches  int
}

type postCall struct {
	endpoint string
	payload  []byte
}

func (c *fakeClient) Post(ctx context.Context, endpoint string, payload []byte) error {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFly {
		c.maxInFly = c.inFlight
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.posts = append(c.posts, postCall{endpoint: endpoint, payload: cp})
	var err error
	if len(c.errs) > 0 {
		err = c.errs[0]
		c.errs = c.errs[1:]
	}
	block := c.block
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return err
}

func (c *fakeClient) FetchReviewState(ctx context.Context, sessionID string) (domain.ReviewState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	return c.state, c.stateErr
}

func (c *fakeClient) postCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.posts)
}

func (c *fakeClient) postAt(i int) postCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posts[i]
}

func (c *fakeClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *fakeClient) maxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFly
}

func (c *fakeClient) setState(state domain.ReviewState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// memStore implements ports.QueueStore in memory.
type memStore struct {
	mu   sync.Mutex
	ops  []domain.QueuedOp
	next uint64
}

func (s *memStore) Append(ctx context.Context, op domain.QueuedOp) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	op.ID = s.next
	s.ops = append(s.ops, op)
	return op.ID, nil
}

func (s *memStore) List(ctx context.Context) ([]domain.QueuedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.QueuedOp{}, s.ops...), nil
}

func (s *memStore) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range s.ops {
		if op.ID == id {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops), nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) all() []domain.QueuedOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.QueuedOp{}, s.ops...)
}

// fakeReview implements ports.ReviewStateProvider with a settable lock.
type fakeReview struct {
	mu     sync.Mutex
	locked bool
	state  domain.ReviewState
}

func (r *fakeReview) IsLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

func (r *fakeReview) Current() domain.ReviewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeReview) setLocked(locked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = locked
}

// saveEventRecorder implements SaveEventEmitter, recording every callback.
type saveEventRecorder struct {
	mu     sync.Mutex
	fields []fieldStatusEvent
	errs   []saveErrorEvent
	saves  int
}

type fieldStatusEvent struct {
	id     string
	status domain.FieldStatus
}

type saveErrorEvent struct {
	err    error
	queued bool
}

func (r *saveEventRecorder) OnGlobalStatus(status domain.GlobalStatus) {}

func (r *saveEventRecorder) OnFieldStatus(fieldID string, status domain.FieldStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, fieldStatusEvent{id: fieldID, status: status})
}

func (r *saveEventRecorder) OnSaveSuccess(fieldCount int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
}

func (r *saveEventRecorder) OnSaveError(err error, queued bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, saveErrorEvent{err: err, queued: queued})
}

func (r *saveEventRecorder) fieldEvents() []fieldStatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fieldStatusEvent{}, r.fields...)
}

func (r *saveEventRecorder) saveErrors() []saveErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]saveErrorEvent{}, r.errs...)
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// fastSaverConfig returns intervals short enough for tests.
func fastSaverConfig() BatchSaverConfig {
	return BatchSaverConfig{
		SessionID:    "sess-1",
		Debounce:     10 * time.Millisecond,
		MinInterval:  20 * time.Millisecond,
		MaxRetries:   3,
		RetryInitial: time.Millisecond,
		RetryMax:     4 * time.Millisecond,
	}
}

func serverErr(code int) error {
	return &domain.SendError{StatusCode: code, Body: "boom"}
}
