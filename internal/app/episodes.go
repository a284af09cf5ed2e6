package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// VideoService expose les métadonnées d'un média et met en file ses téléchargements.
type VideoService struct {
	videos ports.VideoSource
	jobs   *JobService
}

func NewVideoService(videos ports.VideoSource, jobs *JobService) *VideoService {
	return &VideoService{videos: videos, jobs: jobs}
}

type VideoDTO struct {
	domain.VideoInfo
	TrackTypes  []domain.TrackType `json:"trackTypes"`
	PlaylistURL string             `json:"playlistUrl,omitempty"`
}

func (s *VideoService) Get(ctx context.Context, videoID string) (VideoDTO, error) {
	info, err := s.videos.Video(ctx, videoID)
	if err != nil {
		return VideoDTO{}, err
	}
	dto := VideoDTO{VideoInfo: info, TrackTypes: AvailableTrackTypes(info.Subtitles)}
	if dto.TrackTypes == nil {
		dto.TrackTypes = []domain.TrackType{}
	}
	if u, err := ManifestURL(info); err == nil {
		dto.PlaylistURL = u
	}
	return dto, nil
}

// PlaylistURL renvoie l'URL absolue du master HLS (lecture externe).
func (s *VideoService) PlaylistURL(ctx context.Context, videoID string) (string, error) {
	info, err := s.videos.Video(ctx, videoID)
	if err != nil {
		return "", err
	}
	return ManifestURL(info)
}

type EnqueueDownloadRequest struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

// EnqueueDownload crée un job episode.download.
func (s *VideoService) EnqueueDownload(ctx context.Context, videoID string, req EnqueueDownloadRequest) (JobDTO, error) {
	params := domain.EpisodeDownloadParams{
		VideoID: strings.TrimSpace(videoID),
		Type:    strings.TrimSpace(req.Type),
		Target:  strings.TrimSpace(req.Target),
	}
	b, err := json.Marshal(params)
	if err != nil {
		return JobDTO{}, err
	}
	return s.jobs.Create(ctx, CreateJobRequest{Type: domain.JobTypeEpisodeDownload, Params: b})
}
