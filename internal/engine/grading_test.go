package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
)

// memDrafts implements ports.DraftRepository in memory.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]domain.GradeDraft
	saves  int
}

func (r *memDrafts) Load(ctx context.Context) (map[string]domain.GradeDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.GradeDraft, len(r.drafts))
	for k, v := range r.drafts {
		out[k] = v
	}
	return out, nil
}

func (r *memDrafts) Save(ctx context.Context, drafts map[string]domain.GradeDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.drafts = make(map[string]domain.GradeDraft, len(drafts))
	for k, v := range drafts {
		r.drafts[k] = v
	}
	return nil
}

func (r *memDrafts) get(itemID string) (domain.GradeDraft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[itemID]
	return d, ok
}

func fastGradingConfig() GradingSaverConfig {
	return GradingSaverConfig{
		SessionID:    "sess-1",
		Debounce:     10 * time.Millisecond,
		MinInterval:  20 * time.Millisecond,
		MaxRetries:   3,
		RetryInitial: time.Millisecond,
		RetryMax:     4 * time.Millisecond,
	}
}

func newTestGrading(t *testing.T, client *fakeClient, queue *WriteQueue, conn *ConnectivityMonitor, review *fakeReview, drafts *memDrafts) *GradingSaver {
	t.Helper()
	var rp ports.ReviewStateProvider
	if review != nil {
		rp = review
	}
	s := NewGradingSaver(fastGradingConfig(), client, queue, conn, rp, drafts, nil, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func decodeGrades(t *testing.T, payload []byte) domain.SaveGradesRequest {
	t.Helper()
	var req domain.SaveGradesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("decode grading request: %v", err)
	}
	return req
}

func TestGradingSaver_PersistsSnapshotBeforeReturning(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(true, nil)
	s := newTestGrading(t, client, nil, conn, nil, drafts)
	defer s.Stop()

	draft := domain.GradeDraft{
		Grades:      map[string]int{"accuracy": 4},
		Explanation: "mostly correct",
	}
	if err := s.OnGradeEdit("item-1", draft); err != nil {
		t.Fatalf("OnGradeEdit() error = %v", err)
	}

	// The local snapshot exists before any network activity.
	got, ok := drafts.get("item-1")
	if !ok {
		t.Fatal("draft not persisted synchronously")
	}
	if got.Explanation != "mostly correct" {
		t.Errorf("persisted explanation = %q", got.Explanation)
	}
	if client.postCount() != 0 {
		t.Errorf("network call before the debounce elapsed")
	}
}

func TestGradingSaver_SyncsMergedMapAsAutoSave(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(true, nil)
	s := newTestGrading(t, client, nil, conn, nil, drafts)
	defer s.Stop()

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Grades: map[string]int{"accuracy": 4}})
	_ = s.OnGradeEdit("item-2", domain.GradeDraft{Grades: map[string]int{"accuracy": 2}})

	waitUntil(t, time.Second, func() bool { return client.postCount() == 1 },
		"grading save never sent")

	req := decodeGrades(t, client.postAt(0).payload)
	if !req.AutoSave {
		t.Error("AutoSave = false, want true")
	}
	if len(req.Reviews) != 2 {
		t.Fatalf("payload carries %d items, want 2 (merged map)", len(req.Reviews))
	}
	if req.Reviews["item-1"].Grades["accuracy"] != 4 {
		t.Errorf("item-1 grade = %d, want 4", req.Reviews["item-1"].Grades["accuracy"])
	}

	waitUntil(t, time.Second, func() bool {
		st, _ := s.ItemStatus("item-1")
		return st == domain.FieldSaved
	}, "item never reached saved")
}

func TestGradingSaver_OfflineFailureQueuesGradeSave(t *testing.T) {
	store := &memStore{}
	drafts := &memDrafts{}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(false, nil)
	queue := newTestQueue(store, client, conn, 10)
	s := newTestGrading(t, client, queue, conn, nil, drafts)
	defer s.Stop()

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "queued offline"})

	waitUntil(t, time.Second, func() bool { return len(store.all()) == 1 },
		"offline grading save never queued")

	op := store.all()[0]
	if op.Type != domain.OpSaveGrades {
		t.Errorf("queued op type = %v, want save-grades", op.Type)
	}
	req := decodeGrades(t, op.Payload)
	if req.Reviews["item-1"].Explanation != "queued offline" {
		t.Errorf("queued payload lost the draft")
	}

	waitUntil(t, time.Second, func() bool {
		st, _ := s.ItemStatus("item-1")
		return st == domain.FieldUnsaved
	}, "item never marked unsaved")
}

func TestGradingSaver_LockedKeepsLocalSnapshotOnly(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(true, nil)
	review := &fakeReview{locked: true}
	s := newTestGrading(t, client, nil, conn, review, drafts)
	defer s.Stop()

	err := s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "locked edit"})
	if !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("OnGradeEdit() error = %v, want ErrLocked", err)
	}

	if _, ok := drafts.get("item-1"); !ok {
		t.Error("local snapshot missing for a locked edit")
	}
	time.Sleep(30 * time.Millisecond)
	if client.postCount() != 0 {
		t.Errorf("sent %d requests while locked, want 0", client.postCount())
	}
}

func TestGradingSaver_ReloadsDraftsFromPreviousProcess(t *testing.T) {
	drafts := &memDrafts{drafts: map[string]domain.GradeDraft{
		"item-9": {Explanation: "from previous session", Grades: map[string]int{"style": 3}},
	}}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(true, nil)
	s := newTestGrading(t, client, nil, conn, nil, drafts)
	defer s.Stop()

	// The reloaded draft is treated as unsynced and flushed.
	st, ok := s.ItemStatus("item-9")
	if !ok || st != domain.FieldUnsaved {
		t.Errorf("reloaded item status = %v ok=%v, want unsaved", st, ok)
	}

	waitUntil(t, time.Second, func() bool { return client.postCount() == 1 },
		"reloaded draft never synced")
	req := decodeGrades(t, client.postAt(0).payload)
	if req.Reviews["item-9"].Explanation != "from previous session" {
		t.Errorf("reloaded draft missing from sync payload")
	}
}

func TestGradingSaver_RetriesThenFailsArmsManualRetry(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{errs: []error{
		serverErr(500), serverErr(500), serverErr(500), serverErr(500),
	}}
	conn := NewConnectivityMonitor(true, nil)
	s := newTestGrading(t, client, nil, conn, nil, drafts)
	defer s.Stop()

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "x"})

	waitUntil(t, time.Second, func() bool {
		st, _ := s.ItemStatus("item-1")
		return st == domain.FieldFailed
	}, "item never reached failed")
	if client.postCount() != 4 {
		t.Errorf("sent %d requests, want 4", client.postCount())
	}

	s.RetryFailed()
	waitUntil(t, time.Second, func() bool {
		st, _ := s.ItemStatus("item-1")
		return st == domain.FieldSaved
	}, "manual retry never succeeded")
}

func TestGradingSaver_EmitsItemStatusEvents(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{}
	conn := NewConnectivityMonitor(true, nil)
	rec := &saveEventRecorder{}
	s := NewGradingSaver(fastGradingConfig(), client, nil, conn, nil, drafts, nil, nil, nil, rec)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "x"})

	waitUntil(t, time.Second, func() bool {
		st, _ := s.ItemStatus("item-1")
		return st == domain.FieldSaved
	}, "item never reached saved")

	// The presentation layer sees the same progression it gets for cell
	// fields: unsaved on edit, saving on dispatch, saved on success.
	var sawUnsaved, sawSaving, sawSaved bool
	for _, ev := range rec.fieldEvents() {
		if ev.id != "item-1" {
			t.Errorf("event for unexpected item %q", ev.id)
			continue
		}
		switch ev.status {
		case domain.FieldUnsaved:
			sawUnsaved = true
		case domain.FieldSaving:
			sawSaving = true
		case domain.FieldSaved:
			sawSaved = true
		}
	}
	if !sawUnsaved || !sawSaving || !sawSaved {
		t.Errorf("item status events %v missing unsaved/saving/saved", rec.fieldEvents())
	}
}

func TestGradingSaver_EditDuringSendStaysUnsaved(t *testing.T) {
	drafts := &memDrafts{}
	client := &fakeClient{block: make(chan struct{})}
	conn := NewConnectivityMonitor(true, nil)
	s := newTestGrading(t, client, nil, conn, nil, drafts)
	defer s.Stop()

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "v1"})
	waitUntil(t, time.Second, func() bool { return client.postCount() == 1 },
		"send never started")

	_ = s.OnGradeEdit("item-1", domain.GradeDraft{Explanation: "v2"})
	close(client.block)

	// The in-flight send carried v1, so the edit of v2 keeps the item out
	// of saved until the deferred flush catches up.
	waitUntil(t, time.Second, func() bool { return client.postCount() == 2 },
		"deferred flush never ran")
	req := decodeGrades(t, client.postAt(1).payload)
	if req.Reviews["item-1"].Explanation != "v2" {
		t.Errorf("second send explanation = %q, want v2", req.Reviews["item-1"].Explanation)
	}
}
