package models

import "testing"

func TestJobIsTerminal(t *testing.T) {
	cases := []struct {
		status JobStatus
		want   bool
	}{
		{JobPending, false},
		{JobRunning, false},
		{JobSucceeded, true},
		{JobFailed, true},
		{JobCancelled, true},
	}
	for _, c := range cases {
		job := &Job{Status: c.status}
		if got := job.IsTerminal(); got != c.want {
			t.Errorf("Job{Status: %q}.IsTerminal() = %v, want %v", c.status, got, c.want)
		}
	}
}
