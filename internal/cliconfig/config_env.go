package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SYNCWARD_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", os.Getenv("SYNCWARD_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", os.Getenv("SYNCWARD_AUTH_KEY"), &cfg.AuthKey)
	s.setString("session-id", os.Getenv("SYNCWARD_SESSION_ID"), &cfg.SessionID)
	s.setString("workspace", os.Getenv("SYNCWARD_WORKSPACE"), &cfg.Workspace)
	s.setString("state-dir", os.Getenv("SYNCWARD_STATE_DIR"), &cfg.StateDir)
	s.setString("metrics-addr", os.Getenv("SYNCWARD_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("debounce", os.Getenv("SYNCWARD_DEBOUNCE"), &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("min-save-interval", os.Getenv("SYNCWARD_MIN_SAVE_INTERVAL"), &cfg.MinSaveInterval); err != nil {
		return err
	}
	if err := s.setDuration("review-poll", os.Getenv("SYNCWARD_REVIEW_POLL_INTERVAL"), &cfg.ReviewPollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("SYNCWARD_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-queue-size", os.Getenv("SYNCWARD_MAX_QUEUE_SIZE"), &cfg.MaxQueueSize); err != nil {
		return err
	}

	return nil
}
