package ports

import (
	"context"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

type DownloadRepository interface {
	// Create renvoie ErrConflict si un enregistrement existe déjà pour ce job.
	Create(ctx context.Context, d domain.Download) (domain.Download, error)
	Get(ctx context.Context, id string) (domain.Download, error)
	List(ctx context.Context, limit int) ([]domain.Download, error)
	ListByVideo(ctx context.Context, videoID string, limit int) ([]domain.Download, error)
}
