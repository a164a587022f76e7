package models

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a unit of work executed by an agent, created through the HTTP API
// or by the recurring-job scheduler.
type Job struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	AgentID     string    `json:"agent_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      JobStatus `json:"status"`
	Priority    int       `json:"priority"`

	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Logs   []string `json:"logs,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// JobEventKind identifies the sort of change broadcast on the job event stream.
type JobEventKind string

const (
	JobEventCreated  JobEventKind = "created"
	JobEventUpdated  JobEventKind = "updated"
	JobEventFinished JobEventKind = "finished"
)

// JobEvent is broadcast whenever a job record changes, driving the
// event-driven side of the job runner in addition to its periodic scan.
type JobEvent struct {
	Kind JobEventKind `json:"kind"`
	Job  Job          `json:"job"`
}

// CompactificationNode is one level of a session's hierarchical summary tree
// produced by the context compressor.
type CompactificationNode struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Level     int       `json:"level"` // 0 = topic summary, 1 = broad summary, ...
	Summary   string     `json:"summary"`
	TokenCount int       `json:"token_count"`
	CreatedAt time.Time `json:"created_at"`
}
