package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

const downloadColumns = `id, job_id, video_id, title, target, track_type, path, filename, mime_type, bytes, warnings_json, created_at`

type DownloadsRepository struct {
	db *sql.DB
}

func NewDownloadsRepository(db *sql.DB) *DownloadsRepository {
	return &DownloadsRepository{db: db}
}

func scanDownload(row rowScanner) (domain.Download, error) {
	var d domain.Download
	var warnings []byte
	var createdAt string
	if err := row.Scan(&d.ID, &d.JobID, &d.VideoID, &d.Title, &d.Target, &d.TrackType, &d.Path, &d.Filename, &d.MimeType, &d.Bytes, &warnings, &createdAt); err != nil {
		return domain.Download{}, err
	}
	if len(warnings) > 0 {
		_ = json.Unmarshal(warnings, &d.Warnings)
	}
	d.CreatedAt = parseTime(createdAt)
	return d, nil
}

func (r *DownloadsRepository) Create(ctx context.Context, d domain.Download) (domain.Download, error) {
	var warnings []byte
	if len(d.Warnings) > 0 {
		b, err := json.Marshal(d.Warnings)
		if err != nil {
			return domain.Download{}, err
		}
		warnings = b
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads(`+downloadColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.JobID, d.VideoID, d.Title, d.Target, d.TrackType, d.Path, d.Filename, d.MimeType, d.Bytes, warnings, formatTime(d.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Download{}, ports.ErrConflict
		}
		return domain.Download{}, err
	}
	return r.Get(ctx, d.ID)
}

func (r *DownloadsRepository) Get(ctx context.Context, id string) (domain.Download, error) {
	d, err := scanDownload(r.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Download{}, ports.ErrNotFound
		}
		return domain.Download{}, err
	}
	return d, nil
}

func (r *DownloadsRepository) List(ctx context.Context, limit int) ([]domain.Download, error) {
	return r.list(ctx, `SELECT `+downloadColumns+` FROM downloads ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
}

func (r *DownloadsRepository) ListByVideo(ctx context.Context, videoID string, limit int) ([]domain.Download, error) {
	return r.list(ctx, `SELECT `+downloadColumns+` FROM downloads WHERE video_id = ? ORDER BY created_at DESC LIMIT ?`, videoID, clampLimit(limit))
}

func (r *DownloadsRepository) list(ctx context.Context, query string, args ...any) ([]domain.Download, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Download{}
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// Le driver n'expose pas de type d'erreur stable: on se base sur le message.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
