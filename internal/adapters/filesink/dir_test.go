package filesink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirSink_SaveWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "videos")
	s := NewDirSink(dir)

	saved, err := s.Save(context.Background(), strings.NewReader("matroska"), "Ep 1.mkv", "video/x-matroska")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Filename != "Ep 1.mkv" || saved.Bytes != int64(len("matroska")) || saved.MimeType != "video/x-matroska" {
		t.Fatalf("unexpected saved file: %+v", saved)
	}
	b, err := os.ReadFile(saved.Path)
	if err != nil || string(b) != "matroska" {
		t.Fatalf("unexpected content %q, %v", b, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, got %d entries", len(entries))
	}
}

func TestDirSink_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	s := NewDirSink(dir)

	first, err := s.Save(context.Background(), strings.NewReader("a"), "Ep.mkv", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.Save(context.Background(), strings.NewReader("b"), "Ep.mkv", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.Path == second.Path {
		t.Fatalf("expected distinct paths")
	}
	if second.Filename != "Ep (1).mkv" {
		t.Fatalf("unexpected second filename %q", second.Filename)
	}
}

func TestDirSink_StripsSeparators(t *testing.T) {
	dir := t.TempDir()
	saved, err := NewDirSink(dir).Save(context.Background(), strings.NewReader("x"), "../evil/name.ass", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(saved.Path) != dir {
		t.Fatalf("file escaped destination: %s", saved.Path)
	}
}

func TestDirSink_CanceledContextLeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirSink(dir).Save(ctx, strings.NewReader("x"), "a.mkv", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty destination, got %d entries", len(entries))
	}
}
