package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/reviewlab/syncward/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AppendAssignsMonotonicIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := s.Append(ctx, domain.QueuedOp{Type: domain.OpSaveCells, Payload: []byte("x")})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if id <= last {
			t.Errorf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestStore_ListReturnsInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payloads := []string{"first", "second", "third"}
	for _, p := range payloads {
		if _, err := s.Append(ctx, domain.QueuedOp{
			Type:     domain.OpSaveCells,
			Endpoint: "/cells",
			Payload:  []byte(p),
			QueuedAt: time.Now(),
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	ops, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ops) != len(payloads) {
		t.Fatalf("List() returned %d ops, want %d", len(ops), len(payloads))
	}
	for i, want := range payloads {
		if got := string(ops[i].Payload); got != want {
			t.Errorf("op %d payload = %q, want %q", i, got, want)
		}
	}
}

func TestStore_DeleteAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, _ := s.Append(ctx, domain.QueuedOp{Type: domain.OpSaveCells, Payload: []byte("a")})
	id2, _ := s.Append(ctx, domain.QueuedOp{Type: domain.OpSaveCells, Payload: []byte("b")})

	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	if err := s.Delete(ctx, id1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d after delete, want 1", n)
	}

	// Deleting an id that is gone is not an error.
	if err := s.Delete(ctx, id1); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}

	ops, _ := s.List(ctx)
	if len(ops) != 1 || ops[0].ID != id2 {
		t.Errorf("remaining ops = %+v, want only id %d", ops, id2)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	op := domain.QueuedOp{
		Type:     domain.OpSubmitForReview,
		Endpoint: "/v1/sessions/s1/submit-for-review",
		Payload:  []byte("{}"),
		QueuedAt: time.Now().Truncate(time.Second),
	}
	if _, err := s.Append(ctx, op); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	ops, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops after reopen, want 1", len(ops))
	}
	if ops[0].Type != domain.OpSubmitForReview {
		t.Errorf("op type = %v, want submit-for-review", ops[0].Type)
	}
	if ops[0].Endpoint != op.Endpoint {
		t.Errorf("endpoint = %q, want %q", ops[0].Endpoint, op.Endpoint)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Append(ctx, domain.QueuedOp{}); err == nil {
		t.Error("Append() with canceled context = nil, want error")
	}
	if _, err := s.List(ctx); err == nil {
		t.Error("List() with canceled context = nil, want error")
	}
}
