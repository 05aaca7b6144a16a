package engine

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DoublesToCap(t *testing.T) {
	b := newBackoff(time.Millisecond, 4*time.Millisecond)

	want := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}
	for i, w := range want {
		if b.current != w {
			t.Errorf("delay %d = %v, want %v", i, b.current, w)
		}
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := newBackoff(time.Millisecond, 8*time.Millisecond)
	_ = b.Wait(context.Background())
	_ = b.Wait(context.Background())

	b.Reset()
	if b.current != time.Millisecond {
		t.Errorf("current = %v after Reset, want 1ms", b.current)
	}
}

func TestBackoff_CanceledContext(t *testing.T) {
	b := newBackoff(time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
