package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ANIBEL_ADDR", "0.0.0.0:9000")
	cfg, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("file should be reported missing")
	}
	if cfg.Addr != "0.0.0.0:9000" || cfg.FFmpeg != "ffmpeg" || cfg.HTTPTimeout() != time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("ANIBEL_DB_PATH", "from-env.db")
	path := filepath.Join(t.TempDir(), "anibel.toml")
	body := `
db_path = "from-file.db"
video_api = "https://api.example/"
log_level = "DEBUG"
http_timeout_seconds = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || cfg.DBPath != "from-file.db" || cfg.VideoAPI != "https://api.example" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Level() != zerolog.DebugLevel || cfg.HTTPTimeout() != 5*time.Second {
		t.Fatalf("unexpected level/timeout %v %v", cfg.Level(), cfg.HTTPTimeout())
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown.toml": `plex_token = "x"`,
		"badurl.toml":  `video_api = "ftp://nope"`,
		"level.toml":   `log_level = "loud"`,
		"syntax.toml":  `addr = `,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Addr = ""
	cfg.Server = "not a url"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "addr is required") || !strings.Contains(err.Error(), "server") {
		t.Fatalf("unexpected error %v", err)
	}
}
