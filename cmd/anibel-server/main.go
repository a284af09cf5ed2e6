package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bielarusajed/anibel-dl/internal/adapters/anibel"
	"github.com/bielarusajed/anibel-dl/internal/adapters/ffmpeg"
	"github.com/bielarusajed/anibel-dl/internal/adapters/filesink"
	"github.com/bielarusajed/anibel-dl/internal/adapters/httpapi"
	"github.com/bielarusajed/anibel-dl/internal/adapters/memorybus"
	"github.com/bielarusajed/anibel-dl/internal/adapters/sqlite"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/buildinfo"
	"github.com/bielarusajed/anibel-dl/internal/config"
	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

func main() {
	configPath := flag.String("config", os.Getenv("ANIBEL_CONFIG"), "Fichier TOML de configuration (optionnel)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:8080)")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: anibel.db)")
	flag.Parse()

	cfg, fromFile, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := zerolog.New(os.Stdout).Level(cfg.Level()).With().Timestamp().Str("app", "anibel-server").Logger()
	log.Logger = logger

	logger.Info().
		Interface("build", buildinfo.Current()).
		Str("db", cfg.DBPath).
		Str("staging", cfg.StagingDir).
		Bool("config_file", fromFile).
		Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()
	if v, err := db.SchemaVersion(ctx); err == nil {
		logger.Debug().Int("schema_version", v).Msg("database ready")
	}

	jobsRepo := db.Jobs()
	if n, err := jobsRepo.FailInterrupted(ctx, "interrupted", "server stopped while the job was running"); err != nil {
		logger.Warn().Err(err).Msg("failed to recover interrupted jobs")
	} else if n > 0 {
		logger.Warn().Int64("jobs", n).Msg("marked interrupted jobs as failed")
	}

	bus := memorybus.New()
	defer bus.Close()
	jobsSvc := app.NewJobService(jobsRepo, bus)
	settingsSvc := app.NewSettingsService(db.Settings())
	downloadsRepo := db.Downloads()

	settings, err := settingsSvc.Get(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read settings, using defaults")
		settings = domain.DefaultSettings()
	}
	settings = app.NormalizeSettings(settings)

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = buildinfo.UserAgent()
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	fetch := app.NewFetcher(httpClient, userAgent)
	source := anibel.NewClient(httpClient).
		WithVideoAPI(cfg.VideoAPI).
		WithFontsAPI(cfg.FontsAPI).
		WithUserAgent(userAgent)

	// Fenêtre de segments et cadence partagées par tous les téléchargements; ajustées par Runtime.Apply.
	window := app.NewDynamicLimiter(settings.MaxConcurrentDownloads)
	pace := rate.NewLimiter(rate.Inf, 1)

	orchestrator := app.NewRemuxOrchestrator(app.RemuxOptions{
		Manifests:  app.NewManifestClient(fetch),
		Segments:   app.NewSegmentFetcher(fetch, window, pace),
		Fetch:      fetch,
		Fonts:      source,
		Muxer:      ffmpeg.NewMuxer(cfg.FFmpeg, logger.With().Str("component", "ffmpeg").Logger()),
		Sink:       filesink.NewDirSink(settings.Destination),
		StagingDir: cfg.StagingDir,
		Logger:     logger,
	})

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.DefaultWorkerOptions()
	opts.Executors = app.NewExecutorRegistry(&app.EpisodeDownloadExecutor{
		Videos: source,
		Remux:  orchestrator,
		SinkFor: func(destination string) ports.FileSink {
			return filesink.NewDirSink(destination)
		},
	})
	opts.DestinationFunc = func(ctx context.Context) (string, error) {
		s, err := settingsSvc.Get(ctx)
		if err != nil {
			return "", err
		}
		return s.Destination, nil
	}

	pool := app.NewWorkerPool(shutdownCtx, logger, jobsRepo, bus, opts)
	defer pool.Close()

	janitor := app.NewStagingJanitor(logger.With().Str("component", "staging-janitor").Logger(), cfg.StagingDir, time.Duration(settings.StagingMaxAgeMinutes)*time.Minute)
	go janitor.Run(shutdownCtx)

	recorder := app.NewDownloadRecorder(logger.With().Str("component", "download-recorder").Logger(), bus, downloadsRepo)
	go recorder.Run(shutdownCtx)

	runtime := app.Runtime{Pool: pool, Window: window, Pace: pace, Janitor: janitor}
	runtime.Apply(settings)
	logger.Info().
		Int("workers", pool.Count()).
		Int("segment_window", window.Limit()).
		Float64("segment_rps", settings.SegmentRequestsPerSecond).
		Msg("workers started")

	srv := httpapi.NewServer(logger, httpapi.Services{
		Jobs:      jobsSvc,
		Settings:  settingsSvc,
		Videos:    app.NewVideoService(source, jobsSvc),
		Downloads: app.NewDownloadService(downloadsRepo),
		Bus:       bus,
		Window:    window,
		Pool:      pool,
		OnSettingsUpdated: func(updated domain.Settings) {
			runtime.Apply(updated)
			logger.Info().Interface("settings", updated).Msg("settings applied")
		},
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
