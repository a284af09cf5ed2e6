package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

func TestJobService_CreateStoresCanonicalEpisodeParams(t *testing.T) {
	repo := newMemJobsRepo()
	bus := &recordingBus{}
	svc := NewJobService(repo, bus)

	job, err := svc.Create(context.Background(), CreateJobRequest{
		Type:   domain.JobTypeEpisodeDownload,
		Params: json.RawMessage(`{"videoId":" abc ","type":"DUB","target":"720"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var p domain.EpisodeDownloadParams
	if err := json.Unmarshal(job.Params, &p); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if p.VideoID != "abc" || p.Type != "dub" || p.Target != "720p" {
		t.Fatalf("unexpected params %+v", p)
	}
	if job.State != domain.JobQueued || len(bus.topics) != 1 || bus.topics[0] != TopicJobCreated {
		t.Fatalf("unexpected job %+v / topics %v", job, bus.topics)
	}
}

func TestJobService_CreateRejectsUnknownType(t *testing.T) {
	svc := NewJobService(newMemJobsRepo(), nil)
	_, err := svc.Create(context.Background(), CreateJobRequest{Type: "transcode"})
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeInvalidParams {
		t.Fatalf("expected invalid_params, got %v", err)
	}
}

func TestJobService_Cancel(t *testing.T) {
	repo := newMemJobsRepo()
	svc := NewJobService(repo, nil)
	ctx := context.Background()

	_, _ = repo.Create(ctx, domain.Job{ID: "running", Type: jobTypeNoop, State: domain.JobRunning})
	_, _ = repo.Create(ctx, domain.Job{ID: "done", Type: jobTypeNoop, State: domain.JobCompleted})

	got, err := svc.Cancel(ctx, "running")
	if err != nil || got.State != domain.JobCanceled {
		t.Fatalf("expected canceled, got %+v (%v)", got, err)
	}
	got, err = svc.Cancel(ctx, "done")
	if err != nil || got.State != domain.JobCompleted {
		t.Fatalf("terminal job must be left alone, got %+v (%v)", got, err)
	}
	if _, err := svc.Cancel(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

func TestJobService_ListFiltersByState(t *testing.T) {
	repo := newMemJobsRepo()
	svc := NewJobService(repo, nil)
	ctx := context.Background()
	_, _ = repo.Create(ctx, domain.Job{ID: "a", Type: jobTypeNoop, State: domain.JobQueued})
	_, _ = repo.Create(ctx, domain.Job{ID: "b", Type: jobTypeNoop, State: domain.JobCompleted})
	_, _ = repo.Create(ctx, domain.Job{ID: "c", Type: jobTypeNoop, State: domain.JobMuxing})

	got, err := svc.List(ctx, 10, "queued", " MUXING ", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected jobs %+v", got)
	}
	if _, err := svc.List(ctx, 10, "paused"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
