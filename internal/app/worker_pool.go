package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// WorkerPool fait tourner MaxWorkers workers; SetCount ajuste le nombre à chaud.
// Réduire le nombre laisse les workers retirés finir leur téléchargement en cours.
// Close annule tout, y compris les jobs en cours.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
	repo   ports.JobRepository
	bus    ports.EventBus
	opts   WorkerOptions

	mu    sync.Mutex
	stops []chan struct{}
	next  int
	wg    sync.WaitGroup
}

func NewWorkerPool(parent context.Context, logger zerolog.Logger, repo ports.JobRepository, bus ports.EventBus, opts WorkerOptions) *WorkerPool {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{ctx: ctx, cancel: cancel, logger: logger, repo: repo, bus: bus, opts: opts}
}

func (p *WorkerPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stops)
}

func (p *WorkerPool) SetCount(n int) {
	if n <= 0 {
		n = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}

	current := len(p.stops)
	for i := current; i < n; i++ {
		stop := make(chan struct{})
		p.stops = append(p.stops, stop)
		p.next++
		logger := p.logger.With().Int("worker", p.next).Logger()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			NewWorker(logger, p.repo, p.bus, p.opts).RunUntil(p.ctx, stop)
		}()
	}
	if n < current {
		for _, stop := range p.stops[n:] {
			close(stop)
		}
		p.stops = p.stops[:n]
	}
	if n != current {
		p.logger.Info().Int("from", current).Int("to", n).Msg("worker pool resized")
	}
}

func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.cancel()
	p.stops = nil
	p.mu.Unlock()
	p.wg.Wait()
}
