package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// phaseBar affiche une barre en pourcentage sur un terminal, sinon une ligne par changement de phase.
type phaseBar struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	phase string
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newPhaseBar(out *os.File, description string) *phaseBar {
	p := &phaseBar{out: out}
	if isTerminal(out) {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
		)
	}
	return p
}

// Update prend une fraction dans [0,1].
func (p *phaseBar) Update(fraction float64, phase string) {
	if p.bar == nil {
		if phase != "" && phase != p.phase {
			fmt.Fprintf(p.out, "%3.0f%% %s\n", fraction*100, phase)
		}
		p.phase = phase
		return
	}
	if phase != "" && phase != p.phase {
		p.bar.Describe(phase)
	}
	p.phase = phase
	_ = p.bar.Set(int(fraction * 100))
}

func (p *phaseBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.out)
	}
}
