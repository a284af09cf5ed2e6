package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// Services regroupe ce que l'API expose. Chaque champ est optionnel: ses routes sont omises s'il est nil.
type Services struct {
	Jobs      *app.JobService
	Settings  *app.SettingsService
	Videos    *app.VideoService
	Downloads *app.DownloadService
	Bus       ports.EventBus

	// Window et Pool alimentent /health (segments en vol, workers actifs).
	Window *app.DynamicLimiter
	Pool   *app.WorkerPool

	// OnSettingsUpdated applique les réglages à chaud (pool, fenêtre, cadence, janitor).
	OnSettingsUpdated func(domain.Settings)
}

type Server struct {
	logger zerolog.Logger
	svc    Services
}

func NewServer(logger zerolog.Logger, svc Services) *Server {
	return &Server{logger: logger, svc: svc}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE est long: pas de timeout de requête.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.svc.Jobs != nil {
				NewJobsHandler(s.svc.Jobs).Routes(r)
			}
			if s.svc.Settings != nil {
				NewSettingsHandler(s.svc.Settings, s.svc.OnSettingsUpdated).Routes(r)
			}
			if s.svc.Videos != nil {
				NewVideosHandler(s.svc.Videos, s.svc.Downloads).Routes(r)
			}
			if s.svc.Downloads != nil {
				NewDownloadsHandler(s.svc.Downloads).Routes(r)
			}
		})
	})

	return r
}
