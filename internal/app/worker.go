package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

type WorkerOptions struct {
	PollInterval time.Duration
	Executors    ExecutorRegistry
	// DestinationFunc lit la destination courante (réglages) au début de chaque job.
	DestinationFunc func(ctx context.Context) (string, error)
}

func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		PollInterval: 750 * time.Millisecond,
		Executors:    NewExecutorRegistry(nil),
	}
}

type Worker struct {
	logger zerolog.Logger
	repo   ports.JobRepository
	bus    ports.EventBus
	opts   WorkerOptions
}

func NewWorker(logger zerolog.Logger, repo ports.JobRepository, bus ports.EventBus, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultWorkerOptions().PollInterval
	}
	if opts.Executors.byType == nil {
		opts.Executors = DefaultWorkerOptions().Executors
	}
	return &Worker{logger: logger, repo: repo, bus: bus, opts: opts}
}

func (w *Worker) Run(ctx context.Context) {
	w.RunUntil(ctx, nil)
}

// RunUntil s'arrête sur ctx (job en cours annulé) ou sur stop (job en cours terminé d'abord).
func (w *Worker) RunUntil(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextQueued(ctx)
			if err != nil {
				// Adapter-specific: on traite tout "not found" comme "rien à faire".
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if ctx.Err() == nil {
					w.logger.Error().Err(err).Msg("claim next job failed")
				}
				continue
			}

			w.execute(ctx, job)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job domain.Job) {
	logger := w.logger.With().Str("job_id", job.ID).Str("type", job.Type).Logger()
	logger.Info().Msg("job claimed")
	PublishJobEvent(w.bus, TopicJobStarted, job)

	isCanceled := func() (bool, error) {
		current, err := w.repo.Get(ctx, job.ID)
		if err != nil {
			return false, err
		}
		return current.State == domain.JobCanceled, nil
	}

	updateProgress := func(progress float64, phase string) error {
		updated, err := w.repo.UpdateProgress(ctx, job.ID, progress, phase)
		if err != nil {
			return err
		}
		PublishJobEvent(w.bus, TopicJobProgress, updated)
		return nil
	}

	updateResult := func(b []byte) error {
		_, err := w.repo.UpdateResult(ctx, job.ID, b)
		return err
	}

	state := domain.JobRunning
	enterMuxing := func() error {
		if state == domain.JobMuxing {
			return nil
		}
		updated, err := w.repo.UpdateState(ctx, job.ID, domain.JobRunning, domain.JobMuxing)
		if err != nil {
			return err
		}
		state = domain.JobMuxing
		PublishJobEvent(w.bus, TopicJobMuxing, updated)
		return nil
	}

	env := ExecEnv{
		UpdateProgress: updateProgress,
		UpdateResult:   updateResult,
		IsCanceled:     isCanceled,
		EnterMuxing:    enterMuxing,
	}
	if w.opts.DestinationFunc != nil {
		dest, err := w.opts.DestinationFunc(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read destination, using default")
		}
		env.Destination = dest
	}

	exec := w.opts.Executors.Get(job.Type)
	err := exec.Execute(ctx, job, env)

	canceled, cerr := isCanceled()
	if cerr != nil {
		logger.Error().Err(cerr).Msg("failed to reload job")
		return
	}
	if canceled {
		logger.Info().Msg("job canceled")
		return
	}

	if err != nil {
		w.fail(ctx, logger, job.ID, state, err)
		return
	}

	// Terminer: respecter running -> muxing -> completed.
	if err := enterMuxing(); err != nil {
		logger.Warn().Err(err).Msg("failed to mark job muxing")
		return
	}
	finished, err := w.repo.UpdateState(ctx, job.ID, domain.JobMuxing, domain.JobCompleted)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to mark job completed")
		return
	}
	if done, perr := w.repo.UpdateProgress(ctx, job.ID, 1, string(domain.PhaseDone)); perr == nil {
		finished = done
	}
	logger.Info().Msg("job completed")
	PublishJobEvent(w.bus, TopicJobCompleted, finished)
}

func (w *Worker) fail(ctx context.Context, logger zerolog.Logger, jobID string, from domain.JobState, err error) {
	code, msg := CodeIO, err.Error()
	var coded *CodedError
	if errors.As(err, &coded) {
		code = coded.Code
		if coded.Message != "" {
			msg = coded.Message
		}
	} else {
		code = errorCode(err)
	}
	logger.Error().Err(err).Str("error_code", code).Msg("executor failed")

	if _, uerr := w.repo.UpdateError(ctx, jobID, code, msg); uerr != nil {
		logger.Warn().Err(uerr).Msg("failed to persist job error")
	}
	failed, uerr := w.repo.UpdateState(ctx, jobID, from, domain.JobFailed)
	if uerr != nil {
		logger.Warn().Err(uerr).Msg("failed to mark job failed")
		return
	}
	PublishJobEvent(w.bus, TopicJobFailed, failed)
}
