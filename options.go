package syncward

import (
	"net/http"

	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
	"github.com/reviewlab/syncward/pkg/metrics"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// Clock abstracts time for deterministic tests.
type Clock = ports.Clock

// QueueStore is the durable store backing the write queue.
type QueueStore = ports.QueueStore

// DraftRepository persists grading draft snapshots.
type DraftRepository = ports.DraftRepository

// Option configures optional behavior of an Engine.
type Option func(*options)

// options holds the optional configuration for an Engine instance.
type options struct {
	httpClient   ports.HTTPClient
	logger       log.Logger
	clock        ports.Clock
	eventHandler EventHandler
	queueStore   ports.QueueStore
	draftRepo    ports.DraftRepository
	metrics      *metrics.Metrics
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
		logger:     log.NewNoopLogger(),
		clock:      ports.SystemClock{},
	}
}

// WithHTTPClient sets a custom HTTP client for service communication.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock injects a clock, for deterministic tests.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithEventHandler sets a handler for engine events.
// Events are called synchronously from engine goroutines.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithQueueStore substitutes the durable queue store. If not provided, a
// BadgerDB store is opened under Config.StateDir.
func WithQueueStore(store QueueStore) Option {
	return func(o *options) {
		o.queueStore = store
	}
}

// WithDraftRepository substitutes the grading draft store. If not provided,
// an atomic JSON file under Config.StateDir is used.
func WithDraftRepository(repo DraftRepository) Option {
	return func(o *options) {
		o.draftRepo = repo
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
