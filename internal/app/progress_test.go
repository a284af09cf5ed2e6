package app

import (
	"testing"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

func TestProgress_ReportAndShrink(t *testing.T) {
	var seen []domain.ProgressState
	p := NewProgress(func(s domain.ProgressState) { seen = append(seen, s) })

	p.Start(10, "start")
	p.Report(3, "")
	p.Report(1, "fetch")
	p.Shrink(2)

	s := p.Snapshot()
	if s.Current != 4 || s.Total != 8 || s.Phase != "fetch" {
		t.Fatalf("unexpected state %+v", s)
	}
	// Le total ne passe jamais sous Current.
	p.Shrink(100)
	if s := p.Snapshot(); s.Total != 4 {
		t.Fatalf("total below current: %+v", s)
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(seen))
	}
	p.Reset()
	if s := p.Snapshot(); s != (domain.ProgressState{}) {
		t.Fatalf("reset: %+v", s)
	}
}

func TestProgress_NilSafe(t *testing.T) {
	var p *Progress
	p.Start(1, "")
	p.Report(1, "")
	p.Shrink(1)
	p.Reset()
	if s := p.Snapshot(); s.Total != 0 {
		t.Fatalf("nil progress: %+v", s)
	}
}

func TestProgressState_Fraction(t *testing.T) {
	if f := (domain.ProgressState{Current: 1, Total: 4}).Fraction(); f != 0.25 {
		t.Fatalf("fraction: %v", f)
	}
	if f := (domain.ProgressState{}).Fraction(); f != 0 {
		t.Fatalf("zero total: %v", f)
	}
}
