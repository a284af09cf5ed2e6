package anibel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

func TestClient_Video_DecodesPayload(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"x","videoId":"abc","title":"Ep 1","host":"https://cdn.example/","hls":"v/abc/master.m3u8",
			"subtitles":[{"path":"subs/абв субцітры.ass","fonts":["Arial"]}],"episode":3,"support":{"dub":true,"sub":true}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.Client()).WithVideoAPI(ts.URL)
	info, err := c.Video(context.Background(), "abc")
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if gotPath != "/api/video/abc" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if info.Title != "Ep 1" || info.HLS != "v/abc/master.m3u8" || info.Episode != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if len(info.Subtitles) != 1 || info.Subtitles[0].Fonts[0] != "Arial" {
		t.Fatalf("unexpected subtitles: %+v", info.Subtitles)
	}
}

func TestClient_Video_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := NewClient(ts.Client()).WithVideoAPI(ts.URL).Video(context.Background(), "nope")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Video_ServerErrorIsFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.Client()).WithVideoAPI(ts.URL).Video(context.Background(), "abc")
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestClient_ResolveFonts(t *testing.T) {
	var got fontsRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/fonts/get" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`["https://cdn.example/fonts/Arial.ttf"]`))
	}))
	defer ts.Close()

	urls, err := NewClient(ts.Client()).WithFontsAPI(ts.URL).ResolveFonts(context.Background(), []string{"Arial"})
	if err != nil {
		t.Fatalf("fonts: %v", err)
	}
	if len(got.FontNames) != 1 || got.FontNames[0] != "Arial" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if len(urls) != 1 || urls[0] != "https://cdn.example/fonts/Arial.ttf" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestClient_ResolveFonts_NullIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer ts.Close()

	if _, err := NewClient(ts.Client()).WithFontsAPI(ts.URL).ResolveFonts(context.Background(), []string{"Arial"}); err == nil {
		t.Fatalf("expected error for null response")
	}
}

func TestVideoIDFromRef(t *testing.T) {
	cases := map[string]string{
		"abc":                                    "abc",
		" abc ":                                  "abc",
		"https://video.anibel.net/abc":           "abc",
		"https://video.anibel.net/abc/":          "abc",
		"https://video.anibel.net/api/video/abc": "abc",
	}
	for in, want := range cases {
		got, err := VideoIDFromRef(in)
		if err != nil || got != want {
			t.Fatalf("VideoIDFromRef(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "https://video.anibel.net/", "a/b"} {
		if _, err := VideoIDFromRef(bad); !errors.Is(err, ErrInvalidVideoRef) {
			t.Fatalf("VideoIDFromRef(%q): expected ErrInvalidVideoRef, got %v", bad, err)
		}
	}
}
