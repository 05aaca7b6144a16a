// Package cliconfig holds the configuration plumbing for the syncward agent
// CLI: defaults, TOML file loading, SYNCWARD_* environment variables, and
// flag precedence. Values set explicitly on the command line always win;
// environment variables beat the file; the file beats defaults.
package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/reviewlab/syncward"
)

// Config holds CLI configuration for the syncward agent.
type Config struct {
	ServiceURL string
	AuthKey    string
	SessionID  string

	// Workspace is the directory of session content files the agent
	// watches; each file is one tracked field.
	Workspace string

	// StateDir holds the durable queue and draft snapshots.
	StateDir string

	Debounce           time.Duration
	MinSaveInterval    time.Duration
	ReviewPollInterval time.Duration
	HTTPTimeout        time.Duration

	MaxQueueSize int

	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	def := syncward.DefaultConfig()
	return Config{
		Debounce:           def.Debounce,
		MinSaveInterval:    def.MinSaveInterval,
		ReviewPollInterval: def.ReviewPollInterval,
		HTTPTimeout:        def.HTTPTimeout,
		MaxQueueSize:       def.MaxQueueSize,
		AuthKey:            os.Getenv("SYNCWARD_AUTH_KEY"),
	}
}

// Validate checks the CLI configuration for errors.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("service-url is required")
	}
	if c.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	if c.SessionID == "" {
		return fmt.Errorf("session-id is required")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// EngineConfig converts the CLI configuration into the library Config.
func (c *Config) EngineConfig() syncward.Config {
	cfg := syncward.DefaultConfig()
	cfg.ServiceURL = c.ServiceURL
	cfg.AuthKey = c.AuthKey
	cfg.SessionID = c.SessionID
	cfg.StateDir = c.StateDir
	cfg.Debounce = c.Debounce
	cfg.MinSaveInterval = c.MinSaveInterval
	cfg.ReviewPollInterval = c.ReviewPollInterval
	cfg.HTTPTimeout = c.HTTPTimeout
	cfg.MaxQueueSize = c.MaxQueueSize
	return cfg
}
