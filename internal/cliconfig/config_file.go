package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ServiceURL string `toml:"service_url"`
	AuthKey    string `toml:"auth_key"`
	SessionID  string `toml:"session_id"`
	Workspace  string `toml:"workspace"`
	StateDir   string `toml:"state_dir"`

	Debounce           string `toml:"debounce"`
	MinSaveInterval    string `toml:"min_save_interval"`
	ReviewPollInterval string `toml:"review_poll_interval"`
	HTTPTimeout        string `toml:"http_timeout"`

	MaxQueueSize int `toml:"max_queue_size"`

	MetricsAddr string `toml:"metrics_addr"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.syncward/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".syncward", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("session-id", fc.SessionID, &cfg.SessionID)
	s.setString("workspace", fc.Workspace, &cfg.Workspace)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	if err := s.setDuration("debounce", fc.Debounce, &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("min-save-interval", fc.MinSaveInterval, &cfg.MinSaveInterval); err != nil {
		return err
	}
	if err := s.setDuration("review-poll", fc.ReviewPollInterval, &cfg.ReviewPollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("max-queue-size", fc.MaxQueueSize, &cfg.MaxQueueSize)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
