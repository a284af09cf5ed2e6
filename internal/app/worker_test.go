package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

type memJobsRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
	seq  []string
}

func newMemJobsRepo() *memJobsRepo {
	return &memJobsRepo{jobs: map[string]domain.Job{}}
}

func (r *memJobsRepo) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	r.seq = append(r.seq, job.ID)
	return job, nil
}

func (r *memJobsRepo) Get(ctx context.Context, id string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, ports.ErrNotFound
	}
	return j, nil
}

func (r *memJobsRepo) List(ctx context.Context, limit int, states ...domain.JobState) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Job, 0, len(r.seq))
	for _, id := range r.seq {
		j := r.jobs[id]
		if len(states) > 0 && !slices.Contains(states, j.State) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *memJobsRepo) ClaimNextQueued(ctx context.Context) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.seq {
		j := r.jobs[id]
		if j.State == domain.JobQueued {
			j.State = domain.JobRunning
			r.jobs[id] = j
			return j, nil
		}
	}
	return domain.Job{}, ports.ErrNotFound
}

func (r *memJobsRepo) mutate(id string, f func(*domain.Job) error) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, ports.ErrNotFound
	}
	if err := f(&j); err != nil {
		return domain.Job{}, err
	}
	r.jobs[id] = j
	return j, nil
}

func (r *memJobsRepo) UpdateProgress(ctx context.Context, id string, progress float64, phase string) (domain.Job, error) {
	return r.mutate(id, func(j *domain.Job) error { j.Progress, j.Phase = progress, phase; return nil })
}

func (r *memJobsRepo) UpdateResult(ctx context.Context, id string, b []byte) (domain.Job, error) {
	return r.mutate(id, func(j *domain.Job) error { j.ResultJSON = b; return nil })
}

func (r *memJobsRepo) UpdateError(ctx context.Context, id, code, msg string) (domain.Job, error) {
	return r.mutate(id, func(j *domain.Job) error { j.ErrorCode, j.ErrorMessage = code, msg; return nil })
}

func (r *memJobsRepo) UpdateState(ctx context.Context, id string, expected, next domain.JobState) (domain.Job, error) {
	if !domain.CanTransition(expected, next) {
		return domain.Job{}, domain.ErrInvalidTransition
	}
	return r.mutate(id, func(j *domain.Job) error {
		if j.State != expected {
			return ports.ErrNotFound
		}
		j.State = next
		return nil
	})
}

type funcExecutor func(ctx context.Context, job domain.Job, env ExecEnv) error

func (f funcExecutor) Execute(ctx context.Context, job domain.Job, env ExecEnv) error {
	return f(ctx, job, env)
}

func runOne(t *testing.T, repo *memJobsRepo, ex JobExecutor) domain.Job {
	t.Helper()
	job, err := repo.ClaimNextQueued(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	w := NewWorker(zerolog.Nop(), repo, nil, WorkerOptions{
		Executors: ExecutorRegistry{byType: map[string]JobExecutor{job.Type: ex}},
		DestinationFunc: func(context.Context) (string, error) {
			return "/videos", nil
		},
	})
	w.execute(context.Background(), job)
	out, _ := repo.Get(context.Background(), job.ID)
	return out
}

func TestWorker_FailurePersistsCodeAndMessage(t *testing.T) {
	repo := newMemJobsRepo()
	_, _ = repo.Create(context.Background(), domain.Job{ID: "j1", Type: "x", State: domain.JobQueued})

	job := runOne(t, repo, funcExecutor(func(ctx context.Context, job domain.Job, env ExecEnv) error {
		if env.Destination != "/videos" {
			t.Errorf("unexpected destination %q", env.Destination)
		}
		if err := env.EnterMuxing(); err != nil {
			return err
		}
		return &CodedError{Code: CodeMux, Message: "download failed while muxing", Err: errors.New("exit status 1")}
	}))

	if job.State != domain.JobFailed {
		t.Fatalf("expected failed, got %q", job.State)
	}
	if job.ErrorCode != CodeMux || job.ErrorMessage != "download failed while muxing" {
		t.Fatalf("unexpected error fields %q / %q", job.ErrorCode, job.ErrorMessage)
	}
}

func TestWorker_PlainErrorIsMapped(t *testing.T) {
	repo := newMemJobsRepo()
	_, _ = repo.Create(context.Background(), domain.Job{ID: "j1", Type: "x", State: domain.JobQueued})

	job := runOne(t, repo, funcExecutor(func(ctx context.Context, job domain.Job, env ExecEnv) error {
		return domain.ErrNoPlayableRendition
	}))
	if job.State != domain.JobFailed || job.ErrorCode != CodeNoPlayableRendition {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestWorker_CanceledDuringExecutionStaysCanceled(t *testing.T) {
	repo := newMemJobsRepo()
	_, _ = repo.Create(context.Background(), domain.Job{ID: "j1", Type: "x", State: domain.JobQueued})

	job := runOne(t, repo, funcExecutor(func(ctx context.Context, job domain.Job, env ExecEnv) error {
		if _, err := repo.UpdateState(ctx, job.ID, domain.JobRunning, domain.JobCanceled); err != nil {
			t.Errorf("cancel: %v", err)
		}
		return context.Canceled
	}))
	if job.State != domain.JobCanceled || job.ErrorCode != "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestWorker_SuccessGoesThroughMuxing(t *testing.T) {
	repo := newMemJobsRepo()
	_, _ = repo.Create(context.Background(), domain.Job{ID: "j1", Type: "x", State: domain.JobQueued})

	job := runOne(t, repo, funcExecutor(func(ctx context.Context, job domain.Job, env ExecEnv) error {
		return env.UpdateResult([]byte(`{"ok":true}`))
	}))
	if job.State != domain.JobCompleted || job.Progress != 1 || job.Phase != string(domain.PhaseDone) {
		t.Fatalf("unexpected job %+v", job)
	}
	if string(job.ResultJSON) != `{"ok":true}` {
		t.Fatalf("unexpected result %s", job.ResultJSON)
	}
}

func TestWorker_RunUntilStops(t *testing.T) {
	w := NewWorker(zerolog.Nop(), newMemJobsRepo(), nil, WorkerOptions{PollInterval: time.Millisecond})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.RunUntil(context.Background(), stop)
		close(done)
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
