package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

// CreateJob inserts a job record and broadcasts a JobEventCreated event.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	logs, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("marshal job logs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job (id, parent_id, agent_id, session_id, title, description, status, priority,
			retry_count, max_retries, last_retry_at, next_run_at, result, error, logs, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, nullString(job.ParentID), job.AgentID, nullString(job.SessionID), job.Title, job.Description,
		string(job.Status), job.Priority, job.RetryCount, job.MaxRetries, nullTime(job.LastRetryAt), nullTime(job.NextRunAt),
		job.Result, job.Error, string(logs), job.CreatedAt, nullTime(job.StartedAt), nullTime(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	s.broadcastJobEvent(models.JobEvent{Kind: models.JobEventCreated, Job: *job})
	return nil
}

// UpdateJob persists a job's mutable fields and broadcasts an update event
// (or a finished event, if the job has reached a terminal status).
func (s *Store) UpdateJob(ctx context.Context, job *models.Job) error {
	logs, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("marshal job logs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE job SET status = ?, priority = ?, retry_count = ?, max_retries = ?, last_retry_at = ?,
			next_run_at = ?, result = ?, error = ?, logs = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`, string(job.Status), job.Priority, job.RetryCount, job.MaxRetries, nullTime(job.LastRetryAt),
		nullTime(job.NextRunAt), job.Result, job.Error, string(logs), nullTime(job.StartedAt), nullTime(job.FinishedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	kind := models.JobEventUpdated
	if job.IsTerminal() {
		kind = models.JobEventFinished
	}
	s.broadcastJobEvent(models.JobEvent{Kind: kind, Job: *job})
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM job WHERE id = ?`, id)
	return scanJobRow(row)
}

// ListChildJobs returns all jobs whose parent is the given job id.
func (s *Store) ListChildJobs(ctx context.Context, parentID string) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectColumns+` FROM job WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query child jobs: %w", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// DueJobs returns pending jobs whose next_run_at has passed (or is unset),
// ordered by priority then age, for the periodic scanner's scan tick.
func (s *Store) DueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, jobSelectColumns+`
		FROM job
		WHERE status = ? AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, string(models.JobPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// CancelJob marks a pending or running job, and every pending/running
// descendant, as cancelled.
func (s *Store) CancelJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	now := time.Now()
	job.Status = models.JobCancelled
	job.FinishedAt = &now
	if err := s.UpdateJob(ctx, job); err != nil {
		return err
	}

	children, err := s.ListChildJobs(ctx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.CancelJob(ctx, child.ID); err != nil {
			return err
		}
	}
	return nil
}

// PruneJobs deletes terminal jobs older than olderThan and returns the count removed.
func (s *Store) PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM job WHERE status IN (?, ?, ?) AND created_at < ?
	`, string(models.JobSucceeded), string(models.JobFailed), string(models.JobCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// SubscribeJobEvents registers a channel that receives every job event until
// UnsubscribeJobEvents is called. The event-driven side of the job runner
// uses this instead of polling.
func (s *Store) SubscribeJobEvents() chan models.JobEvent {
	ch := make(chan models.JobEvent, 64)
	s.jobEventsMu.Lock()
	s.jobEvents = append(s.jobEvents, ch)
	s.jobEventsMu.Unlock()
	return ch
}

// UnsubscribeJobEvents removes a channel previously returned by
// SubscribeJobEvents and closes it.
func (s *Store) UnsubscribeJobEvents(ch chan models.JobEvent) {
	s.jobEventsMu.Lock()
	defer s.jobEventsMu.Unlock()
	for i, c := range s.jobEvents {
		if c == ch {
			s.jobEvents = append(s.jobEvents[:i], s.jobEvents[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Store) broadcastJobEvent(evt models.JobEvent) {
	s.jobEventsMu.Lock()
	defer s.jobEventsMu.Unlock()
	for _, ch := range s.jobEvents {
		select {
		case ch <- evt:
		default:
			// slow subscriber: drop rather than block the writer goroutine
		}
	}
}

const jobSelectColumns = `SELECT id, parent_id, agent_id, session_id, title, description, status, priority,
	retry_count, max_retries, last_retry_at, next_run_at, result, error, logs, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRow(row rowScanner) (*models.Job, error) {
	var job models.Job
	var parentID, sessionID sql.NullString
	var status string
	var lastRetryAt, nextRunAt, startedAt, finishedAt sql.NullTime
	var logsJSON string

	err := row.Scan(&job.ID, &parentID, &job.AgentID, &sessionID, &job.Title, &job.Description, &status, &job.Priority,
		&job.RetryCount, &job.MaxRetries, &lastRetryAt, &nextRunAt, &job.Result, &job.Error, &logsJSON,
		&job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.ParentID = parentID.String
	job.SessionID = sessionID.String
	job.Status = models.JobStatus(status)
	if lastRetryAt.Valid {
		job.LastRetryAt = &lastRetryAt.Time
	}
	if nextRunAt.Valid {
		job.NextRunAt = &nextRunAt.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if logsJSON != "" && logsJSON != "null" {
		if err := json.Unmarshal([]byte(logsJSON), &job.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal job logs: %w", err)
		}
	}
	return &job, nil
}

func scanJobRows(rows *sql.Rows) ([]*models.Job, error) {
	var out []*models.Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
