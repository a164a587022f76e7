package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fail  int // number of times to fail before succeeding
}

func (f *fakeExecutor) Execute(ctx context.Context, job *models.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return "", errors.New("transient failure")
	}
	return "ok", nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitForStatus(t *testing.T, s *store.Store, jobID string, want models.JobStatus, timeout time.Duration) *models.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s in time", jobID, want)
	return nil
}

func TestRunnerExecutesJobOnCreateEvent(t *testing.T) {
	s := newTestStore(t)
	exec := &fakeExecutor{}
	runner := New(s, exec, WithScanInterval(time.Hour))
	runner.Start(context.Background())
	defer runner.Stop()

	job := &models.Job{AgentID: "agent-1"}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got := waitForStatus(t, s, job.ID, models.JobSucceeded, time.Second)
	if got.Result != "ok" {
		t.Fatalf("expected result ok, got %q", got.Result)
	}
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	s := newTestStore(t)
	exec := &fakeExecutor{fail: 1}
	runner := New(s, exec, WithScanInterval(20*time.Millisecond), WithMaxRetries(2),
		WithRetryBackoff(func(attempt int) time.Duration { return 10 * time.Millisecond }))
	runner.Start(context.Background())
	defer runner.Stop()

	job := &models.Job{AgentID: "agent-1"}
	job.NextRunAt = nil
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got := waitForStatus(t, s, job.ID, models.JobSucceeded, 2*time.Second)
	if got.RetryCount < 1 {
		t.Fatalf("expected at least one retry, got %d", got.RetryCount)
	}
}
