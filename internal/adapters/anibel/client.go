package anibel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

const (
	DefaultVideoAPI = "https://video.anibel.net"
	DefaultFontsAPI = "https://video.anibel.net"
	userAgent       = "anibel-dl"
)

var ErrInvalidVideoRef = errors.New("invalid video reference")

// Client parle à l'API vidéo (métadonnées) et au service de polices.
type Client struct {
	videoAPI  string
	fontsAPI  string
	client    *http.Client
	userAgent string
}

var (
	_ ports.VideoSource  = (*Client)(nil)
	_ ports.FontResolver = (*Client)(nil)
)

func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		videoAPI:  DefaultVideoAPI,
		fontsAPI:  DefaultFontsAPI,
		client:    client,
		userAgent: userAgent,
	}
}

func (c *Client) WithVideoAPI(endpoint string) *Client {
	if strings.TrimSpace(endpoint) != "" {
		c.videoAPI = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
	return c
}

func (c *Client) WithFontsAPI(endpoint string) *Client {
	if strings.TrimSpace(endpoint) != "" {
		c.fontsAPI = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
	return c
}

func (c *Client) WithUserAgent(ua string) *Client {
	if strings.TrimSpace(ua) != "" {
		c.userAgent = strings.TrimSpace(ua)
	}
	return c
}

type videoResponse struct {
	VideoID   string                 `json:"videoId"`
	Title     string                 `json:"title"`
	Host      string                 `json:"host"`
	HLS       string                 `json:"hls"`
	Stream    string                 `json:"stream"`
	GroupBy   string                 `json:"groupBy"`
	Episode   int                    `json:"episode"`
	Subtitles []domain.SubtitleAsset `json:"subtitles"`
}

// Video charge les métadonnées d'un média. 404 → ports.ErrNotFound.
func (c *Client) Video(ctx context.Context, videoID string) (domain.VideoInfo, error) {
	id, err := VideoIDFromRef(videoID)
	if err != nil {
		return domain.VideoInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.videoAPI+"/api/video/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.VideoInfo{}, err
	}
	var out videoResponse
	if err := c.do(req, &out); err != nil {
		return domain.VideoInfo{}, err
	}

	info := domain.VideoInfo{
		VideoID:   out.VideoID,
		Title:     out.Title,
		Host:      out.Host,
		HLS:       out.HLS,
		Stream:    out.Stream,
		GroupBy:   out.GroupBy,
		Episode:   out.Episode,
		Subtitles: out.Subtitles,
	}
	if info.VideoID == "" {
		info.VideoID = id
	}
	if info.Subtitles == nil {
		info.Subtitles = []domain.SubtitleAsset{}
	}
	return info, nil
}

type fontsRequest struct {
	FontNames []string `json:"fontNames"`
}

// ResolveFonts envoie les noms de familles et reçoit une liste d'URLs.
// Une réponse JSON null est un échec.
func (c *Client) ResolveFonts(ctx context.Context, fontNames []string) ([]string, error) {
	if fontNames == nil {
		fontNames = []string{}
	}
	b, err := json.Marshal(fontsRequest{FontNames: fontNames})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fontsAPI+"/api/fonts/get", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var urls []string
	if err := c.do(req, &urls); err != nil {
		return nil, err
	}
	if urls == nil {
		return nil, errors.New("font service returned no fonts")
	}
	return urls, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ports.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: anibel http error: %s", domain.ErrFetch, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrParse, req.URL.Path, err)
	}
	return nil
}

// VideoIDFromRef accepte un identifiant nu ou une URL de page vidéo (https://video.anibel.net/<id>).
func VideoIDFromRef(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidVideoRef
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidVideoRef, err)
		}
		s = strings.Trim(u.Path, "/")
		s = strings.TrimPrefix(s, "api/video/")
	}
	if s == "" || strings.ContainsAny(s, "/?# ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoRef, raw)
	}
	return s, nil
}
