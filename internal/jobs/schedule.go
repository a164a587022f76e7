package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// RecurringJob is a config-defined job template that gets re-enqueued
// whenever its cron schedule comes due.
type RecurringJob struct {
	AgentID     string
	Title       string
	Description string

	// Schedule is a standard 5-field cron expression (minute hour dom month dow).
	Schedule string
}

type scheduledEntry struct {
	def   RecurringJob
	sched cron.Schedule
	next  time.Time
}

// Scheduler seeds the job table with a fresh pending Job each time a
// RecurringJob's cron schedule comes due. It computes next-run times with
// robfig/cron's standard parser rather than hand-rolled interval math, the
// same parser the teacher reaches for whenever a feature needs cron syntax.
type Scheduler struct {
	store  *store.Store
	logger *slog.Logger
	jobs   []scheduledEntry
}

// NewScheduler parses every definition's cron expression up front, so a
// malformed schedule is rejected at construction instead of silently never
// firing.
func NewScheduler(st *store.Store, defs []RecurringJob, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	now := time.Now()
	entries := make([]scheduledEntry, 0, len(defs))
	for _, def := range defs {
		sched, err := parser.Parse(def.Schedule)
		if err != nil {
			return nil, fmt.Errorf("recurring job %q: invalid schedule %q: %w", def.Title, def.Schedule, err)
		}
		entries = append(entries, scheduledEntry{def: def, sched: sched, next: sched.Next(now)})
	}
	return &Scheduler{store: st, logger: logger, jobs: entries}, nil
}

// Tick enqueues a pending Job for every recurring definition whose next run
// time has passed as of now, then advances that definition's schedule.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	for i := range s.jobs {
		entry := &s.jobs[i]
		if now.Before(entry.next) {
			continue
		}
		job := &models.Job{
			ID:          uuid.NewString(),
			AgentID:     entry.def.AgentID,
			Title:       entry.def.Title,
			Description: entry.def.Description,
			Status:      models.JobPending,
			CreatedAt:   now,
		}
		if err := s.store.CreateJob(ctx, job); err != nil {
			s.logger.Error("recurring job enqueue failed", "title", entry.def.Title, "error", err)
		}
		entry.next = entry.sched.Next(now)
	}
}

// Run ticks on interval until ctx is cancelled. Callers typically start this
// in its own goroutine alongside Runner.Start.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Tick(ctx, t)
		}
	}
}
