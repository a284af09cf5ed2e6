package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/httpjson"
)

type VideosHandler struct {
	videos    *app.VideoService
	downloads *app.DownloadService
}

func NewVideosHandler(videos *app.VideoService, downloads *app.DownloadService) *VideosHandler {
	return &VideosHandler{videos: videos, downloads: downloads}
}

func (h *VideosHandler) Routes(r chi.Router) {
	r.Route("/videos/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/playlist", h.playlist)
		r.Post("/downloads", h.enqueue)
		if h.downloads != nil {
			r.Get("/downloads", h.history)
		}
	})
}

func (h *VideosHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.videos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, v)
}

// playlist renvoie l'URL du master; ?redirect=1 redirige directement (lecteurs externes).
func (h *VideosHandler) playlist(w http.ResponseWriter, r *http.Request) {
	u, err := h.videos.PlaylistURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"url": u})
}

func (h *VideosHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req app.EnqueueDownloadRequest
	// Corps optionnel: {} = sous-titres, première rendition.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidParams, "invalid json")
		return
	}
	job, err := h.videos.EnqueueDownload(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, job)
}

func (h *VideosHandler) history(w http.ResponseWriter, r *http.Request) {
	items, err := h.downloads.List(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, items)
}
