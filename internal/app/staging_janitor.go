package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StagingJanitor supprime périodiquement les zones de staging orphelines (crash, kill -9).
type StagingJanitor struct {
	logger zerolog.Logger
	dir    string

	TickInterval time.Duration

	mu     sync.Mutex
	maxAge time.Duration
}

func NewStagingJanitor(logger zerolog.Logger, dir string, maxAge time.Duration) *StagingJanitor {
	return &StagingJanitor{
		logger:       logger,
		dir:          dir,
		TickInterval: 10 * time.Minute,
		maxAge:       maxAge,
	}
}

func (j *StagingJanitor) SetMaxAge(d time.Duration) {
	if d <= 0 {
		return
	}
	j.mu.Lock()
	j.maxAge = d
	j.mu.Unlock()
}

func (j *StagingJanitor) MaxAge() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.maxAge
}

// Run balaie une première fois au démarrage puis à chaque tick.
func (j *StagingJanitor) Run(ctx context.Context) {
	interval := j.TickInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	j.Sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("staging janitor stopped")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

func (j *StagingJanitor) Sweep() SweepResult {
	maxAge := j.MaxAge()
	if maxAge <= 0 {
		return SweepResult{}
	}
	res := SweepStaleStaging(j.dir, maxAge, j.logger)
	if len(res.Errors) > 0 {
		j.logger.Warn().Int("errors", len(res.Errors)).Msg("staging sweep incomplete")
	}
	return res
}
