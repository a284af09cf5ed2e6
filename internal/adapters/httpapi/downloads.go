package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/httpjson"
)

type DownloadsHandler struct {
	downloads *app.DownloadService
}

func NewDownloadsHandler(downloads *app.DownloadService) *DownloadsHandler {
	return &DownloadsHandler{downloads: downloads}
}

func (h *DownloadsHandler) Routes(r chi.Router) {
	r.Get("/downloads", h.list)
	r.Get("/downloads/{id}", h.get)
}

func (h *DownloadsHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.downloads.List(r.Context(), r.URL.Query().Get("videoId"), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, items)
}

func (h *DownloadsHandler) get(w http.ResponseWriter, r *http.Request) {
	d, err := h.downloads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, d)
}
