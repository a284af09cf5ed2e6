package app

import (
	"sync"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// Progress est l'objet de contexte de progression d'une opération.
// Le compteur ne décroît jamais au sein d'une opération; seul Reset le remet à zéro.
// Il n'est pas borné par Total: un dépassement trahit un total mal calculé.
// L'observateur reçoit une copie de l'état à chaque changement.
type Progress struct {
	mu       sync.Mutex
	state    domain.ProgressState
	observer func(domain.ProgressState)
}

func NewProgress(observer func(domain.ProgressState)) *Progress {
	return &Progress{observer: observer}
}

// Start fixe le dénominateur avant tout fetch.
func (p *Progress) Start(total int, phase string) {
	if p == nil {
		return
	}
	if total < 0 {
		total = 0
	}
	p.mu.Lock()
	p.state = domain.ProgressState{Current: 0, Total: total, Phase: phase}
	s := p.state
	p.mu.Unlock()
	p.notify(s)
}

// Report avance de delta pas; phase vide conserve le libellé courant.
func (p *Progress) Report(delta int, phase string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if delta > 0 {
		p.state.Current += delta
	}
	if phase != "" {
		p.state.Phase = phase
	}
	s := p.state
	p.mu.Unlock()
	p.notify(s)
}

// Shrink retire n pas du total (polices manquantes). Le total ne descend jamais sous Current.
func (p *Progress) Shrink(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.mu.Lock()
	p.state.Total -= n
	if p.state.Total < p.state.Current {
		p.state.Total = p.state.Current
	}
	s := p.state
	p.mu.Unlock()
	p.notify(s)
}

func (p *Progress) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.state = domain.ProgressState{}
	p.mu.Unlock()
	p.notify(domain.ProgressState{})
}

func (p *Progress) Snapshot() domain.ProgressState {
	if p == nil {
		return domain.ProgressState{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Progress) notify(s domain.ProgressState) {
	if p.observer != nil {
		p.observer(s)
	}
}
