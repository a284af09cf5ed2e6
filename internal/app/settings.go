package app

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

type SettingsService struct {
	repo ports.SettingsRepository
}

func NewSettingsService(repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	return s.repo.Put(ctx, NormalizeSettings(settings))
}

// NormalizeSettings remplace les valeurs absentes ou invalides par les défauts.
func NormalizeSettings(settings domain.Settings) domain.Settings {
	def := domain.DefaultSettings()
	settings.Destination = strings.TrimSpace(settings.Destination)
	if settings.Destination == "" {
		settings.Destination = def.Destination
	}
	if settings.MaxWorkers <= 0 {
		settings.MaxWorkers = def.MaxWorkers
	}
	if settings.MaxConcurrentDownloads <= 0 {
		settings.MaxConcurrentDownloads = def.MaxConcurrentDownloads
	}
	if settings.SegmentRequestsPerSecond < 0 || math.IsNaN(settings.SegmentRequestsPerSecond) || math.IsInf(settings.SegmentRequestsPerSecond, 0) {
		settings.SegmentRequestsPerSecond = 0
	}
	if settings.StagingMaxAgeMinutes <= 0 {
		settings.StagingMaxAgeMinutes = def.StagingMaxAgeMinutes
	}
	return settings
}

// Runtime regroupe ce que les réglages pilotent à chaud.
type Runtime struct {
	Pool    *WorkerPool
	Window  *DynamicLimiter
	Pace    *rate.Limiter
	Janitor *StagingJanitor
}

// Apply propage des réglages au pool, à la fenêtre de segments, à la cadence et au janitor.
func (r Runtime) Apply(settings domain.Settings) {
	settings = NormalizeSettings(settings)
	if r.Pool != nil {
		r.Pool.SetCount(settings.MaxWorkers)
	}
	if r.Window != nil {
		r.Window.SetLimit(settings.MaxConcurrentDownloads)
	}
	if r.Pace != nil {
		r.Pace.SetLimit(PaceLimit(settings.SegmentRequestsPerSecond))
	}
	if r.Janitor != nil {
		r.Janitor.SetMaxAge(time.Duration(settings.StagingMaxAgeMinutes) * time.Minute)
	}
}

// PaceLimit: 0 = illimité.
func PaceLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
