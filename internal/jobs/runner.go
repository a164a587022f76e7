// Package jobs runs agent-dispatched work items: immediately when a job is
// created, and on a 10-second periodic scan that catches anything
// the event path missed (retries whose next_run_at has come due, jobs
// created while the runner was down).
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

const defaultScanInterval = 10 * time.Second

// Executor runs a single job to completion. Implementations dispatch to the
// agent named by job.AgentID and return the job's final result or error.
type Executor interface {
	Execute(ctx context.Context, job *models.Job) (result string, err error)
}

// Runner is the job runner: an event-driven listener over the store's job
// broadcast channel plus a periodic scan fallback.
type Runner struct {
	store    *store.Store
	executor Executor
	logger   *slog.Logger

	scanInterval time.Duration
	maxRetries   int
	retryBackoff func(attempt int) time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithScanInterval overrides the periodic scan tick, default 10s.
func WithScanInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.scanInterval = d
		}
	}
}

// WithMaxRetries overrides the default retry ceiling applied to jobs that
// don't set their own MaxRetries.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithRetryBackoff overrides the function computing delay before retry
// attempt n. Defaults to capped exponential backoff.
func WithRetryBackoff(f func(attempt int) time.Duration) Option {
	return func(r *Runner) {
		if f != nil {
			r.retryBackoff = f
		}
	}
}

// New creates a job runner backed by st, dispatching work to executor.
func New(st *store.Store, executor Executor, opts ...Option) *Runner {
	r := &Runner{
		store:        st,
		executor:     executor,
		logger:       slog.Default(),
		scanInterval: defaultScanInterval,
		maxRetries:   3,
		retryBackoff: exponentialBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func exponentialBackoff(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}

// Start launches the event listener and the periodic scan goroutines. It
// returns immediately; call Stop to shut both down.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.stop = make(chan struct{})
	r.mu.Unlock()

	events := r.store.SubscribeJobEvents()

	r.wg.Add(2)
	go r.listenEvents(ctx, events)
	go r.scanLoop(ctx)
}

// Stop halts both goroutines and waits for them to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) listenEvents(ctx context.Context, events chan models.JobEvent) {
	defer r.wg.Done()
	defer r.store.UnsubscribeJobEvents(events)
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Kind == models.JobEventCreated && evt.Job.Status == models.JobPending {
				r.tryRun(ctx, &evt.Job)
			}
		}
	}
}

func (r *Runner) scanLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *Runner) scanOnce(ctx context.Context) {
	due, err := r.store.DueJobs(ctx, time.Now(), 50)
	if err != nil {
		r.logger.Error("scan due jobs failed", "error", err)
		return
	}
	for _, job := range due {
		r.tryRun(ctx, job)
	}
}

func (r *Runner) tryRun(ctx context.Context, job *models.Job) {
	now := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		r.logger.Error("mark job running failed", "job_id", job.ID, "error", err)
		return
	}

	result, err := r.executor.Execute(ctx, job)
	finished := time.Now()

	if err == nil {
		job.Status = models.JobSucceeded
		job.Result = result
		job.FinishedAt = &finished
		if uerr := r.store.UpdateJob(ctx, job); uerr != nil {
			r.logger.Error("mark job succeeded failed", "job_id", job.ID, "error", uerr)
		}
		return
	}

	maxRetries := job.MaxRetries
	if maxRetries == 0 {
		maxRetries = r.maxRetries
	}
	job.Error = err.Error()
	job.Logs = append(job.Logs, err.Error())

	if job.RetryCount < maxRetries {
		job.RetryCount++
		job.Status = models.JobPending
		job.LastRetryAt = &finished
		next := finished.Add(r.retryBackoff(job.RetryCount))
		job.NextRunAt = &next
	} else {
		job.Status = models.JobFailed
		job.FinishedAt = &finished
	}
	if uerr := r.store.UpdateJob(ctx, job); uerr != nil {
		r.logger.Error("record job failure failed", "job_id", job.ID, "error", uerr)
	}
}
