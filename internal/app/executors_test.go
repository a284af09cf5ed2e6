package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

type fakeVideos map[string]domain.VideoInfo

func (f fakeVideos) Video(ctx context.Context, id string) (domain.VideoInfo, error) {
	v, ok := f[id]
	if !ok {
		return domain.VideoInfo{}, ports.ErrNotFound
	}
	return v, nil
}

// envRecorder enregistre ce que l'executor écrit sur le job.
type envRecorder struct {
	mu        sync.Mutex
	phases    []string
	last      float64
	result    []byte
	muxing    int
	cancelAt  int
	canceledN int
}

func (r *envRecorder) env() ExecEnv {
	return ExecEnv{
		UpdateProgress: func(p float64, phase string) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.last = p
			if len(r.phases) == 0 || r.phases[len(r.phases)-1] != phase {
				r.phases = append(r.phases, phase)
			}
			return nil
		},
		UpdateResult: func(b []byte) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.result = append([]byte(nil), b...)
			return nil
		},
		IsCanceled: func() (bool, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.canceledN++
			return r.cancelAt > 0 && r.canceledN >= r.cancelAt, nil
		},
		EnterMuxing: func() error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.muxing++
			if len(r.phases) > 0 && r.phases[len(r.phases)-1] == string(domain.PhaseMuxing) {
				return errors.New("muxing entered after muxing progress")
			}
			return nil
		},
	}
}

func TestParseEpisodeDownloadParams(t *testing.T) {
	p, tt, target, err := ParseEpisodeDownloadParams([]byte(`{"videoId":" abc ","target":"720p"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.VideoID != "abc" || tt != domain.TrackSub || target.Height != 720 {
		t.Fatalf("unexpected params %+v %q %+v", p, tt, target)
	}

	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"videoId":"abc","type":"karaoke"}`,
		`{"videoId":"abc","target":"huge"}`,
	} {
		_, _, _, err := ParseEpisodeDownloadParams([]byte(raw))
		var coded *CodedError
		if !errors.As(err, &coded) || coded.Code != CodeInvalidParams {
			t.Fatalf("%s: expected invalid_params, got %v", raw, err)
		}
	}
}

func TestEpisodeDownloadExecutor_Success(t *testing.T) {
	h := newRemuxHarness(t)
	ex := &EpisodeDownloadExecutor{
		Videos: fakeVideos{"abc": h.fx.video(subFull)},
		Remux:  h.orch,
	}
	rec := &envRecorder{}

	job := domain.Job{
		ID:         "job1",
		Type:       domain.JobTypeEpisodeDownload,
		ParamsJSON: []byte(`{"videoId":"abc","type":"sub","target":"1080"}`),
	}
	if err := ex.Execute(context.Background(), job, rec.env()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.last != 1 {
		t.Fatalf("expected progress 1, got %v", rec.last)
	}
	if rec.muxing != 1 {
		t.Fatalf("expected muxing to be entered once, got %d", rec.muxing)
	}
	if rec.phases[len(rec.phases)-1] != string(domain.PhaseDone) {
		t.Fatalf("unexpected phases %v", rec.phases)
	}

	var res DownloadResult
	if err := json.Unmarshal(rec.result, &res); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if res.VideoID != "abc" || res.Height != 1080 || res.File.Filename != "Episode 1.mkv" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEpisodeDownloadExecutor_UnknownVideo(t *testing.T) {
	h := newRemuxHarness(t)
	ex := &EpisodeDownloadExecutor{Videos: fakeVideos{}, Remux: h.orch}
	rec := &envRecorder{}

	job := domain.Job{ID: "job2", Type: domain.JobTypeEpisodeDownload, ParamsJSON: []byte(`{"videoId":"missing"}`)}
	err := ex.Execute(context.Background(), job, rec.env())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeNotFound {
		t.Fatalf("expected not_found coded error, got %T (%v)", err, err)
	}
	if len(rec.phases) != 0 {
		t.Fatalf("expected no progress updates, got %v", rec.phases)
	}
}

func TestEpisodeDownloadExecutor_CanceledStopsPipeline(t *testing.T) {
	h := newRemuxHarness(t)
	ex := &EpisodeDownloadExecutor{Videos: fakeVideos{"abc": h.fx.video()}, Remux: h.orch}
	rec := &envRecorder{cancelAt: 2}

	job := domain.Job{ID: "job3", Type: domain.JobTypeEpisodeDownload, ParamsJSON: []byte(`{"videoId":"abc"}`)}
	if err := ex.Execute(context.Background(), job, rec.env()); err != nil {
		t.Fatalf("a canceled job must not report an error, got %v", err)
	}
	if rec.result != nil {
		t.Fatalf("a canceled job must not write a result")
	}
	if len(h.sink.saved) != 0 {
		t.Fatalf("nothing should be delivered after cancel")
	}
	h.assertStagingEmpty(t)
}

func TestEpisodeDownloadExecutor_CancelInterruptsMux(t *testing.T) {
	h := newRemuxHarness(t)
	h.muxer.hang = make(chan struct{})
	ex := &EpisodeDownloadExecutor{
		Videos:             fakeVideos{"abc": h.fx.video()},
		Remux:              h.orch,
		CancelPollInterval: 10 * time.Millisecond,
	}
	rec := &envRecorder{}
	env := rec.env()
	var canceled atomic.Bool
	env.IsCanceled = func() (bool, error) { return canceled.Load(), nil }

	job := domain.Job{ID: "job4", Type: domain.JobTypeEpisodeDownload, ParamsJSON: []byte(`{"videoId":"abc"}`)}
	done := make(chan error, 1)
	go func() { done <- ex.Execute(context.Background(), job, env) }()

	select {
	case <-h.muxer.hang:
	case <-time.After(5 * time.Second):
		t.Fatalf("muxer never started")
	}
	// Plus aucune progression pendant le mux: seul le relevé périodique peut voir l'annulation.
	canceled.Store(true)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("a canceled job must not report an error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("cancel did not interrupt the running mux")
	}
	if rec.result != nil || len(h.sink.saved) != 0 {
		t.Fatalf("nothing may be delivered after cancel")
	}
	h.assertStagingEmpty(t)
}

func TestExecutorRegistry_Unsupported(t *testing.T) {
	reg := NewExecutorRegistry(nil)
	err := reg.Get(domain.JobTypeEpisodeDownload).Execute(context.Background(), domain.Job{Type: domain.JobTypeEpisodeDownload}, (&envRecorder{}).env())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeInvalidParams {
		t.Fatalf("expected invalid_params, got %v", err)
	}
	if err := reg.Get("noop").Execute(context.Background(), domain.Job{Type: "noop"}, (&envRecorder{}).env()); err != nil {
		t.Fatalf("noop: %v", err)
	}
}
