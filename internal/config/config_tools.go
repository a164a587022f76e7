package config

import (
	"fmt"
	"time"

	"github.com/monad-ai/monad-core/internal/tools/policy"
)

// ToolsConfig configures the Tool Dispatcher.
type ToolsConfig struct {
	Execution ToolExecutionConfig `yaml:"execution"`
	Jobs      ToolJobsConfig      `yaml:"jobs"`
}

// ToolExecutionConfig controls runtime tool execution behavior.
type ToolExecutionConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Policy is a default tool access policy. It is loaded and validated
	// (Profile defaults to coding), but the tool dispatcher does not read it.
	Policy policy.Policy `yaml:"policy"`
}

// ToolJobsConfig holds job settings. Only ScanInterval is passed to
// internal/jobs.Runner; Retention and PruneInterval are loaded and
// validated, but nothing prunes jobs with them.
type ToolJobsConfig struct {
	// Retention is a completed-job retention period. Default: 24h.
	Retention time.Duration `yaml:"retention"`
	// PruneInterval is a job prune period. Default: 1h.
	PruneInterval time.Duration `yaml:"prune_interval"`
	// ScanInterval is the periodic due-job scan tick.
	ScanInterval time.Duration `yaml:"scan_interval"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 30 * time.Second
	}
	if cfg.Execution.MaxAttempts == 0 {
		cfg.Execution.MaxAttempts = 3
	}
	if cfg.Execution.RetryBackoff == 0 {
		cfg.Execution.RetryBackoff = time.Second
	}
	if cfg.Execution.Policy.Profile == "" {
		cfg.Execution.Policy.Profile = policy.ProfileCoding
	}
	if cfg.Jobs.Retention == 0 {
		cfg.Jobs.Retention = 24 * time.Hour
	}
	if cfg.Jobs.PruneInterval == 0 {
		cfg.Jobs.PruneInterval = time.Hour
	}
	if cfg.Jobs.ScanInterval == 0 {
		cfg.Jobs.ScanInterval = 10 * time.Second
	}
}

var validToolProfiles = map[policy.Profile]bool{
	policy.ProfileMinimal:   true,
	policy.ProfileCoding:    true,
	policy.ProfileMessaging: true,
	policy.ProfileFull:      true,
}

func validateTools(cfg *ToolsConfig) []string {
	var issues []string
	if cfg.Execution.Timeout < 0 {
		issues = append(issues, "tools.execution.timeout must be >= 0")
	}
	if cfg.Execution.MaxAttempts < 0 {
		issues = append(issues, "tools.execution.max_attempts must be >= 0")
	}
	if p := cfg.Execution.Policy.Profile; p != "" && !validToolProfiles[p] {
		issues = append(issues, fmt.Sprintf("tools.execution.policy.profile %q is not a recognized profile", p))
	}
	if cfg.Jobs.Retention < 0 {
		issues = append(issues, "tools.jobs.retention must be >= 0")
	}
	if cfg.Jobs.PruneInterval < 0 {
		issues = append(issues, "tools.jobs.prune_interval must be >= 0")
	}
	if cfg.Jobs.ScanInterval < 0 {
		issues = append(issues, "tools.jobs.scan_interval must be >= 0")
	}
	return issues
}
