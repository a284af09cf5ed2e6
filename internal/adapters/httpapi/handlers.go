package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/buildinfo"
	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/httpjson"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

const defaultRequestTimeout = 30 * time.Second

type healthResponse struct {
	Status   string            `json:"status"`
	Workers  *int              `json:"workers,omitempty"`
	Segments *app.LimiterStats `json:"segments,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.svc.Pool != nil {
		n := s.svc.Pool.Count()
		resp.Workers = &n
	}
	if s.svc.Window != nil {
		st := s.svc.Window.Stats()
		resp.Segments = &st
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}

// writeError traduit une erreur applicative en statut HTTP.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := ""
	msg := err.Error()

	var coded *app.CodedError
	switch {
	case errors.As(err, &coded):
		code = coded.Code
		if coded.Message != "" {
			msg = coded.Message
		}
		switch coded.Code {
		case app.CodeInvalidParams:
			status = http.StatusBadRequest
		case app.CodeNotFound, app.CodeAssetNotFound:
			status = http.StatusNotFound
		case app.CodeFetch, app.CodeParse:
			status = http.StatusBadGateway
		}
	case errors.Is(err, ports.ErrNotFound):
		status, code, msg = http.StatusNotFound, app.CodeNotFound, "not found"
	case errors.Is(err, domain.ErrAssetNotFound):
		status, code = http.StatusNotFound, app.CodeAssetNotFound
	case errors.Is(err, ports.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrFetch), errors.Is(err, domain.ErrParse):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	httpjson.WriteCodedError(w, status, code, msg)
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
