package app

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// ManifestClient récupère et parse les manifestes HLS (master et media).
// Un seul fetch par appel, jamais de retry: l'appelant décide.
type ManifestClient struct {
	fetch Fetcher
}

func NewManifestClient(fetch Fetcher) *ManifestClient {
	return &ManifestClient{fetch: fetch}
}

func (c *ManifestClient) FetchManifest(ctx context.Context, rawURL string) (domain.ManifestGraph, error) {
	body, err := c.fetch.Get(ctx, rawURL)
	if err != nil {
		return domain.ManifestGraph{}, err
	}
	return ParseManifest(body)
}

func (c *ManifestClient) FetchMaster(ctx context.Context, rawURL string) (domain.ManifestGraph, error) {
	return c.fetchKind(ctx, rawURL, domain.ManifestMaster)
}

func (c *ManifestClient) FetchMedia(ctx context.Context, rawURL string) (domain.ManifestGraph, error) {
	return c.fetchKind(ctx, rawURL, domain.ManifestMedia)
}

func (c *ManifestClient) fetchKind(ctx context.Context, rawURL string, want domain.ManifestKind) (domain.ManifestGraph, error) {
	g, err := c.FetchManifest(ctx, rawURL)
	if err != nil {
		return domain.ManifestGraph{}, err
	}
	if g.Kind != want {
		return domain.ManifestGraph{}, fmt.Errorf("%w: expected %s playlist, got %s", domain.ErrParse, want, g.Kind)
	}
	if want == domain.ManifestMedia && len(g.Media.Segments) == 0 {
		return domain.ManifestGraph{}, fmt.Errorf("%w: media playlist %s has no segments", domain.ErrParse, rawURL)
	}
	return g, nil
}

// ParseManifest interprète un texte m3u8 en graphe de renditions.
func ParseManifest(body []byte) (domain.ManifestGraph, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.ManifestGraph{}, fmt.Errorf("%w: empty playlist", domain.ErrParse)
	}
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return domain.ManifestGraph{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	switch listType {
	case m3u8.MASTER:
		master, ok := p.(*m3u8.MasterPlaylist)
		if !ok {
			return domain.ManifestGraph{}, fmt.Errorf("%w: unexpected master playlist type", domain.ErrParse)
		}
		return domain.ManifestGraph{Kind: domain.ManifestMaster, Renditions: convertMaster(master)}, nil
	case m3u8.MEDIA:
		media, ok := p.(*m3u8.MediaPlaylist)
		if !ok {
			return domain.ManifestGraph{}, fmt.Errorf("%w: unexpected media playlist type", domain.ErrParse)
		}
		return domain.ManifestGraph{Kind: domain.ManifestMedia, Media: convertMedia(media)}, nil
	default:
		return domain.ManifestGraph{}, fmt.Errorf("%w: unknown playlist type", domain.ErrParse)
	}
}

func convertMaster(master *m3u8.MasterPlaylist) []domain.Rendition {
	// Le décodeur rattache les EXT-X-MEDIA au premier variant qui les suit:
	// on les regroupe pour les redistribuer par groupe AUDIO.
	var alts []*m3u8.Alternative
	seen := map[*m3u8.Alternative]bool{}
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, a := range v.Alternatives {
			if a == nil || seen[a] || !strings.EqualFold(a.Type, "AUDIO") {
				continue
			}
			seen[a] = true
			alts = append(alts, a)
		}
	}

	out := make([]domain.Rendition, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.Iframe {
			continue
		}
		r := domain.Rendition{
			URI:        v.URI,
			Resolution: parseResolution(v.Resolution),
			Bandwidth:  v.Bandwidth,
			GroupID:    v.Audio,
		}
		for _, a := range alts {
			if v.Audio != "" && a.GroupId != v.Audio {
				continue
			}
			r.Audio = append(r.Audio, domain.Rendition{
				URI:      a.URI,
				GroupID:  a.GroupId,
				Language: a.Language,
				Name:     a.Name,
			})
		}
		out = append(out, r)
	}
	return out
}

func convertMedia(media *m3u8.MediaPlaylist) domain.Rendition {
	r := domain.Rendition{}
	var initMap *m3u8.Map
	if media.Map != nil {
		initMap = media.Map
	}

	count := int(media.Count())
	for i := 0; i < count && i < len(media.Segments); i++ {
		seg := media.Segments[i]
		if seg == nil {
			continue
		}
		if initMap == nil && seg.Map != nil {
			initMap = seg.Map
		}
		s := domain.Segment{URI: seg.URI, Duration: seg.Duration}
		if seg.Limit > 0 {
			s.Length, s.Offset = seg.Limit, seg.Offset
			// Sans "@o", le décodeur laisse 0: la sous-plage suit alors la précédente sur la même URI.
			if s.Offset == 0 && len(r.Segments) > 0 {
				if prev := r.Segments[len(r.Segments)-1]; prev.URI == s.URI && prev.Length > 0 {
					s.Offset = prev.Offset + prev.Length
				}
			}
		}
		r.Segments = append(r.Segments, s)
	}
	if initMap != nil && initMap.URI != "" {
		r.Init = &domain.Segment{URI: initMap.URI, Init: true}
		if initMap.Limit > 0 {
			r.Init.Offset, r.Init.Length = initMap.Offset, initMap.Limit
		}
	}
	return r
}

// parseResolution lit "1920x1080"; nil si absent ou invalide.
func parseResolution(s string) *domain.Resolution {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return nil
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &domain.Resolution{Width: width, Height: height}
}

// ManifestURL construit l'URL absolue du master à partir des métadonnées du média.
func ManifestURL(info domain.VideoInfo) (string, error) {
	if strings.TrimSpace(info.HLS) == "" {
		return "", fmt.Errorf("%w: video has no hls manifest", domain.ErrAssetNotFound)
	}
	return resolveRef(info.Host, info.HLS)
}
