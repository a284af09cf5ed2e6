package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobState
		want     bool
	}{
		{JobQueued, JobRunning, true},
		{JobQueued, JobMuxing, false},
		{JobQueued, JobCompleted, false},
		{JobRunning, JobMuxing, true},
		{JobRunning, JobCompleted, false},
		{JobMuxing, JobCompleted, true},
		{JobMuxing, JobCanceled, true},
		{JobCompleted, JobFailed, false},
		{JobCanceled, JobRunning, false},
		{JobRunning, JobRunning, true},
		{JobState("bogus"), JobRunning, false},
		{JobState("bogus"), JobState("bogus"), false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestJobState_Classes(t *testing.T) {
	for _, s := range []JobState{JobCompleted, JobFailed, JobCanceled} {
		if !s.IsTerminal() || s.IsActive() {
			t.Fatalf("%s should be terminal only", s)
		}
	}
	for _, s := range []JobState{JobRunning, JobMuxing} {
		if s.IsTerminal() || !s.IsActive() {
			t.Fatalf("%s should be active", s)
		}
	}
	if JobQueued.IsTerminal() || JobQueued.IsActive() {
		t.Fatalf("queued is neither active nor terminal")
	}
}
