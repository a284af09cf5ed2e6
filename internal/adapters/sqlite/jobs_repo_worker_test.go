package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/adapters/memorybus"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJobsRepository_ClaimNextQueued(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Jobs()

	// Aucun job -> not found
	if _, err := repo.ClaimNextQueued(ctx); err == nil || !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when no queued jobs, got %v", err)
	}

	now := time.Now().UTC()
	for i, id := range []string{"job1", "job2"} {
		at := now.Add(time.Duration(i-2) * time.Minute)
		if _, err := repo.Create(ctx, domain.Job{ID: id, Type: "noop", State: domain.JobQueued, CreatedAt: at, UpdatedAt: at}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	claimed, err := repo.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != "job1" {
		t.Fatalf("expected to claim oldest (job1), got %q", claimed.ID)
	}
	if claimed.State != domain.JobRunning {
		t.Fatalf("expected claimed state running, got %q", claimed.State)
	}

	updated, err := repo.UpdateProgress(ctx, claimed.ID, 0.5, string(domain.PhaseFetchingVideo))
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if updated.Progress != 0.5 || updated.Phase != "fetching_video" {
		t.Fatalf("unexpected progress %v / %q", updated.Progress, updated.Phase)
	}
}

func TestJobsRepository_UpdateStateGuards(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Jobs()
	now := time.Now()
	if _, err := repo.Create(ctx, domain.Job{ID: "j", Type: "noop", State: domain.JobQueued, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.UpdateState(ctx, "j", domain.JobQueued, domain.JobCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("queued -> completed must be rejected, got %v", err)
	}
	// Mauvais état attendu: aucune ligne modifiée.
	if _, err := repo.UpdateState(ctx, "j", domain.JobRunning, domain.JobMuxing); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on stale expected state, got %v", err)
	}
	if _, err := repo.UpdateError(ctx, "j", "mux_error", "download failed while muxing"); err != nil {
		t.Fatalf("UpdateError: %v", err)
	}
	got, _ := repo.Get(ctx, "j")
	if got.ErrorCode != "mux_error" || got.ErrorMessage == "" {
		t.Fatalf("error not persisted: %+v", got)
	}
}

func TestJobsRepository_FailInterrupted(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Jobs()
	now := time.Now()
	for id, st := range map[string]domain.JobState{"a": domain.JobRunning, "b": domain.JobMuxing, "c": domain.JobQueued, "d": domain.JobCompleted} {
		if _, err := repo.Create(ctx, domain.Job{ID: id, Type: "noop", State: st, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	n, err := repo.FailInterrupted(ctx, "interrupted", "server stopped during the job")
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 jobs failed, got %d", n)
	}
	if j, _ := repo.Get(ctx, "c"); j.State != domain.JobQueued {
		t.Fatalf("queued job must stay queued, got %q", j.State)
	}

	failed, err := repo.List(ctx, 10, domain.JobFailed)
	if err != nil || len(failed) != 2 {
		t.Fatalf("expected 2 failed jobs in filtered list, got %d (%v)", len(failed), err)
	}
	for _, j := range failed {
		if j.ErrorCode != "interrupted" {
			t.Fatalf("unexpected error code %q", j.ErrorCode)
		}
	}
	all, err := repo.List(ctx, 10)
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 jobs, got %d (%v)", len(all), err)
	}
}

func TestWorker_RunsQueuedJobToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := openTestDB(t).Jobs()
	bus := memorybus.New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	jobs := app.NewJobService(repo, bus)
	created, err := jobs.Create(ctx, app.CreateJobRequest{Type: "noop"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	opts := app.DefaultWorkerOptions()
	opts.PollInterval = 5 * time.Millisecond
	w := app.NewWorker(zerolog.Nop(), repo, bus, opts)
	go w.Run(ctx)

	deadline := time.After(5 * time.Second)
	var topics []string
	for {
		select {
		case evt := <-events:
			topics = append(topics, evt.Topic)
			if evt.Topic != "job.completed" {
				continue
			}
			job, err := repo.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if job.State != domain.JobCompleted || job.Progress != 1 || job.Phase != "done" {
				t.Fatalf("unexpected final job %+v", job)
			}
			want := []string{"job.created", "job.started", "job.progress", "job.muxing", "job.completed"}
			if len(topics) != len(want) {
				t.Fatalf("unexpected events %v", topics)
			}
			for i := range want {
				if topics[i] != want[i] {
					t.Fatalf("unexpected events %v", topics)
				}
			}
			return
		case <-deadline:
			t.Fatalf("job not completed in time (events: %v)", topics)
		}
	}
}

func TestWorker_UnsupportedTypeFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := openTestDB(t).Jobs()
	now := time.Now()
	if _, err := repo.Create(ctx, domain.Job{ID: "x", Type: "mystery", State: domain.JobQueued, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	opts := app.DefaultWorkerOptions()
	opts.PollInterval = 5 * time.Millisecond
	go app.NewWorker(zerolog.Nop(), repo, nil, opts).Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.Get(ctx, "x")
		if err == nil && job.State == domain.JobFailed {
			if job.ErrorCode != "invalid_params" {
				t.Fatalf("unexpected error code %q", job.ErrorCode)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job did not fail in time")
}
