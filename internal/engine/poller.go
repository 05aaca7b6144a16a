package engine

import (
	"context"
	"sync"
	"time"
)

// Poller runs a task on a fixed interval while the UI is visible. While
// hidden, no polling happens at all; on becoming visible again the task runs
// immediately once and the interval resumes.
//
// Stop tears down the active ticker goroutine and waits for it to exit, so
// repeated create/stop cycles leave no residual timers or goroutines.
type Poller struct {
	fn       func(ctx context.Context)
	interval time.Duration

	mu      sync.Mutex
	parent  context.Context
	cancel  context.CancelFunc // cancels the current visible-period loop
	wg      sync.WaitGroup
	visible bool
	started bool
	stopped bool
}

// NewPoller creates a poller for fn. The poller is inert until Start.
func NewPoller(fn func(ctx context.Context), interval time.Duration) *Poller {
	return &Poller{
		fn:       fn,
		interval: interval,
	}
}

// Start begins polling, assuming the UI is visible. The task runs once
// immediately, then on every interval tick. Start is a no-op if the poller
// was already started or stopped.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true
	p.visible = true
	p.parent = ctx
	p.startLoopLocked(true)
}

// SetVisible records a visibility transition reported by the host. Hiding
// clears the interval entirely; showing runs the task immediately once and
// resumes the interval. Repeated identical transitions are dropped.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped || p.visible == visible {
		return
	}
	p.visible = visible

	if visible {
		p.startLoopLocked(true)
		return
	}
	p.stopLoopLocked()
}

// Stop halts polling permanently and waits for the loop goroutine to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.stopLoopLocked()
	p.mu.Unlock()

	p.wg.Wait()
}

// startLoopLocked launches the ticker goroutine for one visible period.
// Caller holds p.mu.
func (p *Poller) startLoopLocked(runNow bool) {
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if runNow {
			p.fn(ctx)
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.fn(ctx)
			}
		}
	}()
}

// stopLoopLocked cancels the current loop, if any. Caller holds p.mu.
func (p *Poller) stopLoopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
