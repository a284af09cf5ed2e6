package app

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// StagedFile est un segment écrit dans la zone de staging.
type StagedFile struct {
	Name     string
	Rel      string
	Bytes    int64
	Duration float64
	Init     bool
}

// SegmentFetcher télécharge les segments d'une rendition dans l'ordre du manifeste.
//
// Les requêtes partent en parallèle dans la limite de la fenêtre partagée (window);
// un slot n'est rendu qu'après l'écriture, dans l'ordre, du segment correspondant.
type SegmentFetcher struct {
	fetch  Fetcher
	window *DynamicLimiter
	pace   *rate.Limiter
}

// NewSegmentFetcher: window nil = un segment à la fois; pace nil = pas de limitation de débit.
func NewSegmentFetcher(fetch Fetcher, window *DynamicLimiter, pace *rate.Limiter) *SegmentFetcher {
	if window == nil {
		window = NewDynamicLimiter(1)
	}
	return &SegmentFetcher{fetch: fetch, window: window, pace: pace}
}

type segmentJob struct {
	index int
	seg   domain.Segment
	name  string
	url   string
	body  chan []byte
}

// FetchRendition écrit init<ext> puis 00000<ext>, 00001<ext>... dans dir.
// onProgress(1) est appelé pour le slot init (présent ou non) puis une fois par segment écrit.
func (f *SegmentFetcher) FetchRendition(ctx context.Context, r domain.Rendition, playlistURL string, dir StagingDir, onProgress func(int)) ([]StagedFile, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}

	jobs := make([]*segmentJob, 0, len(r.Segments)+1)
	if r.Init != nil && r.Init.URI != "" {
		u, err := resolveRef(playlistURL, r.Init.URI)
		if err != nil {
			return nil, fmt.Errorf("init segment: %w", err)
		}
		seg := *r.Init
		seg.Init = true
		jobs = append(jobs, &segmentJob{index: -1, seg: seg, name: "init" + segmentExt(seg.URI, ".mp4"), url: u})
	}
	for i, seg := range r.Segments {
		u, err := resolveRef(playlistURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		jobs = append(jobs, &segmentJob{index: i, seg: seg, name: fmt.Sprintf("%05d%s", i, segmentExt(seg.URI, ".ts")), url: u})
	}
	for _, j := range jobs {
		j.body = make(chan []byte, 1)
	}

	staged := make([]StagedFile, 0, len(jobs))
	// Pas de segment d'init: le slot compte quand même.
	if len(jobs) == 0 || !jobs[0].seg.Init {
		onProgress(1)
	}
	if len(jobs) == 0 {
		return staged, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var held atomic.Int64

	g.Go(func() error {
		for _, j := range jobs {
			var body []byte
			select {
			case <-gctx.Done():
				return gctx.Err()
			case body = <-j.body:
			}
			n, err := dir.writeBytes(j.name, body)
			f.window.Release()
			held.Add(-1)
			if err != nil {
				return fmt.Errorf("write %s: %w", j.name, err)
			}
			staged = append(staged, StagedFile{
				Name:     j.name,
				Rel:      dir.Rel(j.name),
				Bytes:    n,
				Duration: j.seg.Duration,
				Init:     j.seg.Init,
			})
			onProgress(1)
		}
		return nil
	})

	for _, j := range jobs {
		if err := f.window.Acquire(gctx); err != nil {
			break
		}
		held.Add(1)
		g.Go(func() error {
			if f.pace != nil {
				if err := f.pace.Wait(gctx); err != nil {
					return err
				}
			}
			b, err := f.fetch.GetRange(gctx, j.url, j.seg.Offset, j.seg.Length)
			if err != nil {
				if j.seg.Init {
					return fmt.Errorf("init segment: %w", err)
				}
				return fmt.Errorf("segment %d: %w", j.index, err)
			}
			j.body <- b
			return nil
		})
	}

	err := g.Wait()
	for held.Load() > 0 {
		held.Add(-1)
		f.window.Release()
	}
	if err != nil {
		if ctx.Err() != nil {
			return staged, ctx.Err()
		}
		return staged, err
	}
	return staged, nil
}

// segmentExt garde l'extension du chemin de l'URI (query ignorée), sinon def.
func segmentExt(uri, def string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 6 {
		return def
	}
	return ext
}
