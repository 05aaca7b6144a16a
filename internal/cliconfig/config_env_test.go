package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"SYNCWARD_SERVICE_URL":    "https://env.example.com",
				"SYNCWARD_SESSION_ID":     "env-sess",
				"SYNCWARD_WORKSPACE":      "/env/workspace",
				"SYNCWARD_DEBOUNCE":       "6s",
				"SYNCWARD_MAX_QUEUE_SIZE": "75",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				ServiceURL:   "https://env.example.com",
				SessionID:    "env-sess",
				Workspace:    "/env/workspace",
				Debounce:     6 * time.Second,
				MaxQueueSize: 75,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"SYNCWARD_SERVICE_URL": "https://env.example.com",
				"SYNCWARD_SESSION_ID":  "env-sess",
			},
			changed: map[string]bool{"service-url": true},
			initial: Config{ServiceURL: "https://flag.example.com"},
			expected: Config{
				ServiceURL: "https://flag.example.com",
				SessionID:  "env-sess",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"SYNCWARD_DEBOUNCE": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"SYNCWARD_MAX_QUEUE_SIZE": "not-a-number",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
