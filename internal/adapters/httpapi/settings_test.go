package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bielarusajed/anibel-dl/internal/adapters/sqlite"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/domain"
)

func TestSettingsHandler_PutAppliesRuntime(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := app.NewSettingsService(db.Settings())
	lim := app.NewDynamicLimiter(1)
	rt := app.Runtime{Window: lim}

	h := NewSettingsHandler(svc, rt.Apply)
	r := chi.NewRouter()
	h.Routes(r)

	// Document partiel: la destination garde sa valeur par défaut.
	body := []byte(`{"maxWorkers":2,"maxConcurrentDownloads":2}`)
	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}
	if lim.Limit() != 2 {
		t.Fatalf("limiter limit: want %d, got %d", 2, lim.Limit())
	}
	var got domain.Settings
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Destination != domain.DefaultSettings().Destination || got.MaxWorkers != 2 {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestSettingsHandler_RejectsUnknownFields(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r := chi.NewRouter()
	NewSettingsHandler(app.NewSettingsService(db.Settings()), nil).Routes(r)

	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte(`{"plexToken":"x"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: want %d, got %d", http.StatusBadRequest, rr.Code)
	}
}
