package config

import (
	"fmt"
	"time"

	"github.com/monad-ai/monad-core/internal/jobs"
)

// CronConfig configures the Job Runner's recurring-job scheduler.
type CronConfig struct {
	Enabled bool `yaml:"enabled"`

	// TickInterval is how often the scheduler checks whether any
	// recurring job's schedule has come due.
	TickInterval time.Duration `yaml:"tick_interval"`

	Jobs []RecurringJobConfig `yaml:"jobs"`
}

// RecurringJobConfig defines a job template re-enqueued on a cron schedule.
type RecurringJobConfig struct {
	AgentID     string `yaml:"agent_id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`

	// Schedule is a standard 5-field cron expression, parsed by
	// internal/jobs.NewScheduler via robfig/cron/v3.
	Schedule string `yaml:"schedule"`
}

// RecurringJobs converts the configured job templates into the shape
// internal/jobs.NewScheduler expects.
func (c CronConfig) RecurringJobs() []jobs.RecurringJob {
	out := make([]jobs.RecurringJob, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		out = append(out, jobs.RecurringJob{
			AgentID:     j.AgentID,
			Title:       j.Title,
			Description: j.Description,
			Schedule:    j.Schedule,
		})
	}
	return out
}

func applyCronDefaults(cfg *CronConfig) {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Minute
	}
}

func validateCron(cfg *CronConfig) []string {
	var issues []string
	if cfg.TickInterval < 0 {
		issues = append(issues, "cron.tick_interval must be >= 0")
	}
	for i, j := range cfg.Jobs {
		if j.AgentID == "" {
			issues = append(issues, fmt.Sprintf("cron.jobs[%d].agent_id is required", i))
		}
		if j.Schedule == "" {
			issues = append(issues, fmt.Sprintf("cron.jobs[%d].schedule is required", i))
		}
	}
	return issues
}
