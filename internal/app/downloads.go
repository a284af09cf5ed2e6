package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// TopicDownloadRecorded est publié une fois le fichier inscrit dans l'historique.
const TopicDownloadRecorded = "download.recorded"

// DownloadRecorder écoute le bus et inscrit dans l'historique chaque job episode.download terminé.
type DownloadRecorder struct {
	logger zerolog.Logger
	bus    ports.EventBus
	repo   ports.DownloadRepository
	now    func() time.Time
}

func NewDownloadRecorder(logger zerolog.Logger, bus ports.EventBus, repo ports.DownloadRepository) *DownloadRecorder {
	return &DownloadRecorder{logger: logger, bus: bus, repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DownloadRecorder) Run(ctx context.Context) {
	if r == nil || r.bus == nil || r.repo == nil {
		return
	}
	ch, cancel := r.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("download recorder stopped")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			r.handleEvent(ctx, evt)
		}
	}
}

func (r *DownloadRecorder) handleEvent(ctx context.Context, evt ports.Event) {
	if evt.Topic != TopicJobCompleted {
		return
	}

	var job JobDTO
	if err := json.Unmarshal(evt.Payload, &job); err != nil {
		return
	}
	if job.Type != domain.JobTypeEpisodeDownload || len(job.Result) == 0 {
		return
	}

	var res DownloadResult
	if err := json.Unmarshal(job.Result, &res); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("invalid download result")
		return
	}
	if res.File.Path == "" {
		return
	}

	d := domain.Download{
		ID:        xid.New().String(),
		JobID:     job.ID,
		VideoID:   res.VideoID,
		Title:     res.Title,
		Target:    res.Target,
		TrackType: string(res.TrackType),
		Path:      res.File.Path,
		Filename:  res.File.Filename,
		MimeType:  res.File.MimeType,
		Bytes:     res.File.Bytes,
		Warnings:  res.Warnings,
		CreatedAt: r.now(),
	}
	created, err := r.repo.Create(ctx, d)
	if err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return
		}
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record download")
		return
	}

	b, _ := json.Marshal(ToDownloadDTO(created))
	if len(b) > 0 {
		r.bus.Publish(TopicDownloadRecorded, b)
	}
}

type DownloadDTO struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	VideoID   string    `json:"videoId"`
	Title     string    `json:"title,omitempty"`
	Target    string    `json:"target"`
	TrackType string    `json:"trackType,omitempty"`
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	Bytes     int64     `json:"bytes"`
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToDownloadDTO(d domain.Download) DownloadDTO {
	return DownloadDTO{
		ID:        d.ID,
		JobID:     d.JobID,
		VideoID:   d.VideoID,
		Title:     d.Title,
		Target:    d.Target,
		TrackType: d.TrackType,
		Path:      d.Path,
		Filename:  d.Filename,
		MimeType:  d.MimeType,
		Bytes:     d.Bytes,
		Warnings:  d.Warnings,
		CreatedAt: d.CreatedAt,
	}
}

type DownloadService struct {
	repo ports.DownloadRepository
}

func NewDownloadService(repo ports.DownloadRepository) *DownloadService {
	return &DownloadService{repo: repo}
}

func (s *DownloadService) Get(ctx context.Context, id string) (DownloadDTO, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return DownloadDTO{}, err
	}
	return ToDownloadDTO(d), nil
}

// List renvoie l'historique, filtré par vidéo si videoID est non vide.
func (s *DownloadService) List(ctx context.Context, videoID string, limit int) ([]DownloadDTO, error) {
	var (
		items []domain.Download
		err   error
	)
	if videoID != "" {
		items, err = s.repo.ListByVideo(ctx, videoID, limit)
	} else {
		items, err = s.repo.List(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]DownloadDTO, 0, len(items))
	for _, d := range items {
		out = append(out, ToDownloadDTO(d))
	}
	return out, nil
}
