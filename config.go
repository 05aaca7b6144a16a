package syncward

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/engine"
)

// Config holds the configuration for a sync engine instance.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// ServiceURL is the base URL of the review service. Required.
	ServiceURL string

	// AuthKey is the API authentication key sent as a bearer token.
	AuthKey string

	// SessionID identifies the editing session. A fresh UUID is generated
	// when left empty.
	SessionID string

	// StateDir holds the durable queue store and the grading draft
	// snapshot. Defaults to ~/.syncward/sessions/<session-id>.
	StateDir string

	// Debounce is how long field edits must quiesce before a save fires.
	Debounce time.Duration

	// MinSaveInterval is the minimum spacing between two batch saves.
	MinSaveInterval time.Duration

	// ReviewPollInterval is the cadence of review-state refreshes while
	// the UI is visible.
	ReviewPollInterval time.Duration

	// MaxRetries caps retries of transient send failures.
	MaxRetries int

	// RetryInitial and RetryMax bound the escalating retry delays.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// MaxQueueSize bounds the durable write queue; insertion beyond it
	// evicts the oldest entry.
	MaxQueueSize int

	// HTTPTimeout applies to the default HTTP client.
	HTTPTimeout time.Duration

	// MinContentLen/MaxContentLen bound accepted field content.
	// Zero MaxContentLen disables the upper bound.
	MinContentLen int
	MaxContentLen int

	// AssumeOnline is the connectivity state before the host reports any
	// transition.
	AssumeOnline bool
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, set ServiceURL (and usually AuthKey) before calling New.
func DefaultConfig() Config {
	return Config{
		Debounce:           engine.DefaultDebounce,
		MinSaveInterval:    engine.DefaultMinInterval,
		ReviewPollInterval: engine.DefaultReviewPollInterval,
		MaxRetries:         engine.DefaultMaxRetries,
		RetryInitial:       engine.DefaultRetryInitial,
		RetryMax:           engine.DefaultRetryMax,
		MaxQueueSize:       engine.DefaultMaxQueueSize,
		HTTPTimeout:        30 * time.Second,
		AssumeOnline:       true,
		AuthKey:            os.Getenv("SYNCWARD_AUTH_KEY"),
	}
}

// SetDefaults fills zero-value fields with their defaults.
func (c *Config) SetDefaults() {
	def := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.MinSaveInterval <= 0 {
		c.MinSaveInterval = def.MinSaveInterval
	}
	if c.ReviewPollInterval <= 0 {
		c.ReviewPollInterval = def.ReviewPollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = def.RetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = def.RetryMax
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("%w: service-url is required", domain.ErrInvalidConfig)
	}

	// Ensure no trailing slash
	if c.ServiceURL[len(c.ServiceURL)-1] == '/' {
		c.ServiceURL = c.ServiceURL[:len(c.ServiceURL)-1]
	}

	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}

	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: state-dir is required when no home directory is available", domain.ErrInvalidConfig)
		}
		c.StateDir = filepath.Join(home, ".syncward", "sessions", c.SessionID)
	}

	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive", domain.ErrInvalidConfig)
	}
	if c.MinSaveInterval <= 0 {
		return fmt.Errorf("%w: min save interval must be positive", domain.ErrInvalidConfig)
	}
	if c.ReviewPollInterval <= 0 {
		return fmt.Errorf("%w: review poll interval must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxContentLen > 0 && c.MinContentLen > c.MaxContentLen {
		return fmt.Errorf("%w: min content length exceeds max", domain.ErrInvalidConfig)
	}

	return nil
}
