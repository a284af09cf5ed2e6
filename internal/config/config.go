package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Config est la configuration de démarrage (process). Les réglages modifiables à chaud
// (destination, concurrence, cadence) vivent en base, voir domain.Settings.
type Config struct {
	Addr       string `toml:"addr"`
	DBPath     string `toml:"db_path"`
	StagingDir string `toml:"staging_dir"`
	FFmpeg     string `toml:"ffmpeg"`
	VideoAPI   string `toml:"video_api"`
	FontsAPI   string `toml:"fonts_api"`
	UserAgent  string `toml:"user_agent"`
	LogLevel   string `toml:"log_level"`

	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`

	// Server est l'URL de base utilisée par la CLI pour parler au serveur.
	Server string `toml:"server"`
}

func Default() Config {
	return Config{
		Addr:               envOr("ANIBEL_ADDR", "127.0.0.1:8080"),
		DBPath:             envOr("ANIBEL_DB_PATH", "anibel.db"),
		StagingDir:         envOr("ANIBEL_STAGING_DIR", filepath.Join(os.TempDir(), "anibel-staging")),
		FFmpeg:             envOr("ANIBEL_FFMPEG", "ffmpeg"),
		VideoAPI:           envOr("ANIBEL_VIDEO_API", "https://video.anibel.net"),
		FontsAPI:           envOr("ANIBEL_FONTS_API", "https://video.anibel.net"),
		UserAgent:          os.Getenv("ANIBEL_USER_AGENT"),
		LogLevel:           envOr("ANIBEL_LOG_LEVEL", "info"),
		HTTPTimeoutSeconds: envInt("ANIBEL_HTTP_TIMEOUT", 60),
		Server:             envOr("ANIBEL_SERVER", "http://127.0.0.1:8080"),
	}
}

// Load part de Default() puis superpose le fichier TOML s'il existe.
// Un chemin vide ou un fichier absent n'est pas une erreur.
func Load(path string) (Config, bool, error) {
	cfg := Default()

	exists := false
	if path = strings.TrimSpace(path); path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			exists = true
			if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
				return Config{}, false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, exists, err
	}
	return cfg, exists, nil
}

func (c *Config) normalize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.DBPath = strings.TrimSpace(c.DBPath)
	c.StagingDir = strings.TrimSpace(c.StagingDir)
	c.FFmpeg = strings.TrimSpace(c.FFmpeg)
	c.VideoAPI = strings.TrimRight(strings.TrimSpace(c.VideoAPI), "/")
	c.FontsAPI = strings.TrimRight(strings.TrimSpace(c.FontsAPI), "/")
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(os.TempDir(), "anibel-staging")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 60
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	for name, raw := range map[string]string{"video_api": c.VideoAPI, "fonts_api": c.FontsAPI, "server": c.Server} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) url, got %q", name, raw))
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Level renvoie le niveau zerolog (info si invalide).
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
