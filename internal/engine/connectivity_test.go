package engine

import (
	"sync"
	"testing"
)

func TestConnectivityMonitor_Online(t *testing.T) {
	m := NewConnectivityMonitor(true, nil)
	if !m.Online() {
		t.Error("Online() = false, want true")
	}

	m.SetOnline(false)
	if m.Online() {
		t.Error("Online() = true after SetOnline(false)")
	}
}

func TestConnectivityMonitor_DeduplicatesTransitions(t *testing.T) {
	m := NewConnectivityMonitor(true, nil)

	var mu sync.Mutex
	var transitions []bool
	m.OnChange(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})

	m.SetOnline(true) // no change
	m.SetOnline(false)
	m.SetOnline(false) // no change
	m.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	want := []bool{false, true}
	if len(transitions) != len(want) {
		t.Fatalf("got %d notifications, want %d", len(transitions), len(want))
	}
	for i, got := range transitions {
		if got != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestConnectivityMonitor_NotifiesAllSubscribers(t *testing.T) {
	m := NewConnectivityMonitor(false, nil)

	var mu sync.Mutex
	calls := make([]int, 2)
	for i := range calls {
		i := i
		m.OnChange(func(online bool) {
			mu.Lock()
			calls[i]++
			mu.Unlock()
		})
	}

	m.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range calls {
		if n != 1 {
			t.Errorf("subscriber %d called %d times, want 1", i, n)
		}
	}
}
