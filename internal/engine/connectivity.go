package engine

import (
	"sync"

	"github.com/reviewlab/syncward/pkg/log"
)

// ConnectivityMonitor turns the host's online/offline signals into a single
// deduplicated state with subscriber fan-out. The hosting layer calls
// SetOnline on every transition it observes; subscribers are only notified
// when the state actually changes.
type ConnectivityMonitor struct {
	mu     sync.RWMutex
	online bool
	subs   []func(online bool)
	logger log.Logger
}

// NewConnectivityMonitor creates a monitor with the given initial state.
func NewConnectivityMonitor(online bool, logger log.Logger) *ConnectivityMonitor {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &ConnectivityMonitor{
		online: online,
		logger: logger,
	}
}

// Online reports the current connectivity state.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers fn to be called on every deduplicated transition.
// Subscribers are invoked synchronously, in registration order, outside the
// monitor's lock.
func (m *ConnectivityMonitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records a connectivity transition reported by the host.
// Repeated identical transitions are dropped without notifying subscribers.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", log.Bool("online", online))

	for _, fn := range subs {
		fn(online)
	}
}
