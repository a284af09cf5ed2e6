package sqlite

import (
	"context"
	"testing"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

func TestSettingsRepository_DefaultsAndPersist(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Settings()

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get(default): %v", err)
	}
	if got != domain.DefaultSettings() {
		t.Fatalf("expected defaults, got %+v", got)
	}

	want := domain.DefaultSettings()
	want.Destination = "/tmp/videos"
	want.MaxWorkers = 3
	want.MaxConcurrentDownloads = 6
	want.SegmentRequestsPerSecond = 12.5

	updated, err := repo.Put(ctx, want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if updated != want {
		t.Fatalf("Put: want %+v, got %+v", want, updated)
	}

	// Second Put: upsert, pas de doublon.
	want.MaxWorkers = 2
	if _, err := repo.Put(ctx, want); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get(after Put): %v", err)
	}
	if got != want {
		t.Fatalf("after Put: want %+v, got %+v", want, got)
	}
}

func TestSettingsRepository_MissingAndInvalidFieldsKeepDefaults(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seed := map[string]string{
		"destination": `"/srv"`,
		"maxWorkers":  `"three"`,
		"obsolete":    `true`,
	}
	for k, v := range seed {
		if _, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES(?, ?, ?)`, k, []byte(v), "2026-01-01T00:00:00.000000Z"); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	got, err := db.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	def := domain.DefaultSettings()
	if got.Destination != "/srv" || got.MaxWorkers != def.MaxWorkers || got.MaxConcurrentDownloads != def.MaxConcurrentDownloads {
		t.Fatalf("unexpected settings %+v", got)
	}
}
