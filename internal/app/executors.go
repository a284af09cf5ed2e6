package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

type JobExecutor interface {
	Execute(ctx context.Context, job domain.Job, env ExecEnv) error
}

// ExecEnv expose au executor ce que le worker sait faire sur le job en cours.
type ExecEnv struct {
	UpdateProgress func(progress float64, phase string) error
	UpdateResult   func(resultJSON []byte) error
	IsCanceled     func() (bool, error)

	// EnterMuxing fait passer le job de running à muxing (une seule fois).
	EnterMuxing func() error

	Destination string
}

type ExecutorRegistry struct {
	byType   map[string]JobExecutor
	fallback JobExecutor
}

func (r ExecutorRegistry) Get(jobType string) JobExecutor {
	if r.byType != nil {
		if ex, ok := r.byType[jobType]; ok {
			return ex
		}
	}
	if r.fallback == nil {
		return unsupportedExecutor{}
	}
	return r.fallback
}

func NewExecutorRegistry(episode *EpisodeDownloadExecutor) ExecutorRegistry {
	byType := map[string]JobExecutor{
		jobTypeNoop: NoopExecutor{},
	}
	if episode != nil {
		byType[domain.JobTypeEpisodeDownload] = episode
	}
	return ExecutorRegistry{byType: byType, fallback: unsupportedExecutor{}}
}

type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, job domain.Job, env ExecEnv) error {
	canceled, err := env.IsCanceled()
	if err != nil {
		return err
	}
	if canceled {
		return nil
	}
	return env.UpdateProgress(1, string(domain.PhaseDone))
}

type unsupportedExecutor struct{}

func (unsupportedExecutor) Execute(ctx context.Context, job domain.Job, env ExecEnv) error {
	return invalidParams(fmt.Sprintf("unsupported job type %q", job.Type))
}

// EpisodeDownloadExecutor exécute un job episode.download:
// métadonnées → pipeline de remux → fichier déposé dans la destination courante.
type EpisodeDownloadExecutor struct {
	Videos ports.VideoSource
	Remux  *RemuxOrchestrator
	// SinkFor construit le sink de la destination lue dans les réglages au moment du job.
	SinkFor func(destination string) ports.FileSink
	// CancelPollInterval: relecture de l'état du job pendant le pipeline, mux compris (1s par défaut).
	CancelPollInterval time.Duration
}

const defaultCancelPollInterval = time.Second

// ParseEpisodeDownloadParams valide les paramètres d'un job episode.download.
func ParseEpisodeDownloadParams(raw []byte) (domain.EpisodeDownloadParams, domain.TrackType, domain.DownloadTarget, error) {
	p := domain.EpisodeDownloadParams{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, "", domain.DownloadTarget{}, invalidParams("invalid params json")
		}
	}
	p.VideoID = strings.TrimSpace(p.VideoID)
	if p.VideoID == "" {
		return p, "", domain.DownloadTarget{}, invalidParams("missing params.videoId")
	}
	target, err := domain.ParseDownloadTarget(p.Target)
	if err != nil {
		return p, "", domain.DownloadTarget{}, invalidParams(err.Error())
	}
	tt := domain.TrackType(strings.ToLower(strings.TrimSpace(p.Type)))
	if tt == "" {
		tt = domain.TrackSub
	}
	if _, ok := domain.ParseTrackType(string(tt)); !ok {
		return p, "", domain.DownloadTarget{}, invalidParams(fmt.Sprintf("invalid params.type %q", p.Type))
	}
	return p, tt, target, nil
}

func (e *EpisodeDownloadExecutor) Execute(ctx context.Context, job domain.Job, env ExecEnv) error {
	if e == nil || e.Videos == nil || e.Remux == nil {
		return errors.New("episode download executor not configured")
	}
	p, tt, target, err := ParseEpisodeDownloadParams(job.ParamsJSON)
	if err != nil {
		return err
	}

	info, err := e.Videos.Video(ctx, p.VideoID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CodedError{Code: errorCode(err), Message: "video lookup failed", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := &jobProgress{env: env, cancel: cancel}
	req := DownloadRequest{Video: info, TrackType: tt, Target: target}
	if e.SinkFor != nil && strings.TrimSpace(env.Destination) != "" {
		req.Sink = e.SinkFor(env.Destination)
	}

	every := e.CancelPollInterval
	if every <= 0 {
		every = defaultCancelPollInterval
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.watch(ctx, every)
	}()

	res, err := e.Remux.Download(ctx, req, NewProgress(tracker.observe))
	cancel()
	wg.Wait()
	canceled, trackErr := tracker.outcome()
	if canceled {
		return nil
	}
	if trackErr != nil {
		return trackErr
	}
	if err != nil {
		return err
	}

	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if env.UpdateResult != nil {
		if err := env.UpdateResult(b); err != nil {
			return err
		}
	}
	return env.UpdateProgress(1, string(domain.PhaseDone))
}

// jobProgress traduit la progression du pipeline en progression de job.
// Les écritures sont limitées aux changements de phase et aux pas de 1%.
type jobProgress struct {
	env    ExecEnv
	cancel context.CancelFunc

	mu          sync.Mutex
	lastPct     int
	lastPhase   string
	muxing      bool
	wasCanceled bool
	err         error
}

func (t *jobProgress) observe(s domain.ProgressState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wasCanceled || t.err != nil {
		return
	}
	// Reset après échec: on garde la dernière valeur persistée.
	if s == (domain.ProgressState{}) {
		return
	}

	pct := int(math.Floor(s.Fraction() * 100))
	if s.Phase == t.lastPhase && pct == t.lastPct {
		return
	}
	t.lastPct, t.lastPhase = pct, s.Phase

	if t.checkCanceledLocked() {
		return
	}
	if s.Phase == string(domain.PhaseMuxing) && !t.muxing && t.env.EnterMuxing != nil {
		t.muxing = true
		if err := t.env.EnterMuxing(); err != nil {
			t.err = err
			t.cancel()
			return
		}
	}
	if t.env.UpdateProgress != nil {
		if err := t.env.UpdateProgress(float64(pct)/100, s.Phase); err != nil {
			t.err = err
			t.cancel()
		}
	}
}

// watch relit l'état du job à intervalle fixe jusqu'à la fin du pipeline (ctx).
func (t *jobProgress) watch(ctx context.Context, every time.Duration) {
	if t.env.IsCanceled == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			stop := t.wasCanceled || t.err != nil || t.checkCanceledLocked()
			t.mu.Unlock()
			if stop {
				return
			}
		}
	}
}

// checkCanceledLocked coupe le pipeline si le job a été annulé. t.mu doit être tenu.
func (t *jobProgress) checkCanceledLocked() bool {
	if t.env.IsCanceled == nil {
		return false
	}
	canceled, err := t.env.IsCanceled()
	if err == nil && canceled {
		t.wasCanceled = true
		t.cancel()
	}
	return t.wasCanceled
}

func (t *jobProgress) outcome() (canceled bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wasCanceled, t.err
}
