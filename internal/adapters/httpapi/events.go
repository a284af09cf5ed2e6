package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/ports"
)

const sseHeartbeat = 15 * time.Second

// handleEvents relaie les événements du bus (job.*, download.recorded) en SSE.
// ?topic=job. filtre par préfixe.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	prefix := strings.TrimSpace(r.URL.Query().Get("topic"))

	// S'abonner avant le hello: un client qui l'a reçu ne rate aucun événement.
	var events <-chan ports.Event
	if s.svc.Bus != nil {
		ch, cancel := s.svc.Bus.Subscribe()
		defer cancel()
		events = ch
	}

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if prefix != "" && !strings.HasPrefix(evt.Topic, prefix) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Topic, evt.Payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
