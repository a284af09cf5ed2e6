package app

import (
	"context"
	"sync"
)

// DynamicLimiter borne le nombre de segments en vol, tous téléchargements confondus.
// SetLimit s'applique à chaud: une baisse ne retire rien aux détenteurs actuels,
// elle retarde seulement les Acquire suivants.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	waiting  int
	// fermé puis recréé à chaque libération ou changement de plafond
	wake chan struct{}
}

type LimiterStats struct {
	Limit    int `json:"limit"`
	InFlight int `json:"inFlight"`
	Waiting  int `json:"waiting"`
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	return &DynamicLimiter{limit: max(limit, 1), wake: make(chan struct{})}
}

func (l *DynamicLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *DynamicLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *DynamicLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{Limit: l.limit, InFlight: l.inFlight, Waiting: l.waiting}
}

func (l *DynamicLimiter) SetLimit(limit int) {
	limit = max(limit, 1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit != limit {
		l.limit = limit
		l.broadcastLocked()
	}
}

// TryAcquire prend un slot sans attendre.
func (l *DynamicLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight >= l.limit {
		return false
	}
	l.inFlight++
	return true
}

func (l *DynamicLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	for l.inFlight >= l.limit {
		wake := l.wake
		l.waiting++
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.waiting--
			l.mu.Unlock()
			return ctx.Err()
		case <-wake:
		}

		l.mu.Lock()
		l.waiting--
	}
	l.inFlight++
	l.mu.Unlock()
	return nil
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.broadcastLocked()
}

func (l *DynamicLimiter) broadcastLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}
