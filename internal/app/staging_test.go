package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStagingArea_PathRejectsEscapes(t *testing.T) {
	area, err := NewStagingArea(t.TempDir(), "x")
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	for _, bad := range []string{"", ".", "..", "../x", "/etc/passwd", "a/../../b"} {
		if _, err := area.Path(bad); err == nil {
			t.Fatalf("Path(%q) should fail", bad)
		}
	}
	if _, err := area.Path("video/00000.ts"); err != nil {
		t.Fatalf("valid path rejected: %v", err)
	}
}

func TestStagingArea_Teardown(t *testing.T) {
	parent := t.TempDir()
	area, err := NewStagingArea(parent, "op")
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	dir, _ := area.Dir("fonts")
	if err := dir.WriteFile("a.ttf", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if names, _ := area.List("fonts"); len(names) != 1 || names[0] != "a.ttf" {
		t.Fatalf("unexpected listing %v", names)
	}
	if err := area.Remove("fonts/a.ttf", "fonts/missing.ttf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := area.Teardown(); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if err := area.Teardown(); err != nil {
		t.Fatalf("second teardown: %v", err)
	}
	entries, _ := os.ReadDir(parent)
	if len(entries) != 0 {
		t.Fatalf("expected empty parent, got %d entries", len(entries))
	}
}

func TestSweepStaleStaging(t *testing.T) {
	parent := t.TempDir()
	old := filepath.Join(parent, "op-old")
	fresh := filepath.Join(parent, "op-fresh")
	other := filepath.Join(parent, "keep-me")
	for _, d := range []string{old, fresh, other} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	past := time.Now().Add(-3 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(other, past, past)

	res := SweepStaleStaging(parent, time.Hour, zerolog.Nop())
	if len(res.Removed) != 1 || res.Removed[0] != old {
		t.Fatalf("unexpected removed: %v", res.Removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh dir removed: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("non staging dir removed: %v", err)
	}
}
