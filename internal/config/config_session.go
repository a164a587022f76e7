package config

import (
	"strings"
	"time"
)

// SessionConfig configures the Session Manager.
type SessionConfig struct {
	// DefaultAgentID is used when a new session isn't created against a
	// specific agent.
	DefaultAgentID string `yaml:"default_agent_id"`

	// DataDir is the filesystem root under which every session gets its
	// own "<DataDir>/<sessionID>/Notes" directory at creation time.
	DataDir string `yaml:"data_dir"`

	// StaleTimeout is how long a session may sit idle before
	// cleanupStaleSessions evicts its in-memory component graph. The
	// persisted row and its messages are untouched; only the live
	// tool/context manager set is torn down.
	StaleTimeout time.Duration `yaml:"stale_timeout"`

	// CleanupInterval is how often the stale-session sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if strings.TrimSpace(cfg.DefaultAgentID) == "" {
		cfg.DefaultAgentID = "main"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "sessions"
	}
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = 30 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
}

func validateSession(cfg *SessionConfig) []string {
	var issues []string
	if cfg.StaleTimeout < 0 {
		issues = append(issues, "session.stale_timeout must be >= 0")
	}
	if cfg.CleanupInterval < 0 {
		issues = append(issues, "session.cleanup_interval must be >= 0")
	}
	return issues
}
