package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/monad-ai/monad-core/pkg/models"
)

func TestSchedulerRejectsInvalidCronExpression(t *testing.T) {
	s := newTestStore(t)
	_, err := NewScheduler(s, []RecurringJob{{AgentID: "agent-1", Title: "bad", Schedule: "not a cron expr"}}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestSchedulerTickDoesNothingBeforeFirstRun(t *testing.T) {
	s := newTestStore(t)
	sched, err := NewScheduler(s, []RecurringJob{
		{AgentID: "agent-1", Title: "daily-digest", Schedule: "0 0 * * *"},
	}, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	now := time.Now()
	sched.Tick(context.Background(), now)

	due, err := s.DueJobs(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if countTitled(due, "daily-digest") != 0 {
		t.Fatalf("did not expect daily-digest to be enqueued before its schedule comes due")
	}
}

func TestSchedulerTickEnqueuesOnceWhenDue(t *testing.T) {
	s := newTestStore(t)
	sched, err := NewScheduler(s, []RecurringJob{
		{AgentID: "agent-1", Title: "every-minute", Schedule: "* * * * *"},
	}, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	firstRun := sched.jobs[0].next

	sched.Tick(context.Background(), firstRun)
	sched.Tick(context.Background(), firstRun.Add(time.Second))

	due, err := s.DueJobs(context.Background(), firstRun.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if got := countTitled(due, "every-minute"); got != 1 {
		t.Fatalf("expected exactly one enqueue for every-minute, got %d", got)
	}
}

func countTitled(jobs []*models.Job, title string) int {
	n := 0
	for _, j := range jobs {
		if j.Title == title {
			n++
		}
	}
	return n
}
