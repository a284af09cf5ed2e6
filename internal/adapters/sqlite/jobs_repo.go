package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// Format fixe (UTC, microsecondes) pour que l'ordre lexical suive l'ordre chronologique.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

const jobColumns = `id, type, state, progress, phase, created_at, updated_at, params_json, result_json, error_code, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var j domain.Job
	var createdAt, updatedAt string
	if err := row.Scan(&j.ID, &j.Type, &j.State, &j.Progress, &j.Phase, &createdAt, &updatedAt, &j.ParamsJSON, &j.ResultJSON, &j.ErrorCode, &j.ErrorMessage); err != nil {
		return domain.Job{}, err
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return j, nil
}

type JobsRepository struct {
	db *sql.DB
}

func NewJobsRepository(db *sql.DB) *JobsRepository {
	return &JobsRepository{db: db}
}

func (r *JobsRepository) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs(`+jobColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, string(job.State), job.Progress, job.Phase,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt), job.ParamsJSON, job.ResultJSON, job.ErrorCode, job.ErrorMessage)
	if err != nil {
		return domain.Job{}, err
	}
	return r.Get(ctx, job.ID)
}

func (r *JobsRepository) Get(ctx context.Context, id string) (domain.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, ports.ErrNotFound
		}
		return domain.Job{}, err
	}
	return j, nil
}

func (r *JobsRepository) List(ctx context.Context, limit int, states ...domain.JobState) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states)+1)
	if len(states) > 0 {
		query += ` WHERE state IN (?` + strings.Repeat(`, ?`, len(states)-1) + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimNextQueued prend le plus ancien job en file en une seule instruction (UPDATE ... RETURNING):
// deux workers ne peuvent pas réclamer le même job.
func (r *JobsRepository) ClaimNextQueued(ctx context.Context) (domain.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET state = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		string(domain.JobRunning), formatTime(time.Now()), string(domain.JobQueued)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, ports.ErrNotFound
		}
		return domain.Job{}, err
	}
	return j, nil
}

func (r *JobsRepository) update(ctx context.Context, id string, query string, args ...any) (domain.Job, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Job{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Job{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *JobsRepository) UpdateProgress(ctx context.Context, id string, progress float64, phase string) (domain.Job, error) {
	return r.update(ctx, id, `
		UPDATE jobs
		SET progress = ?, phase = ?, updated_at = ?
		WHERE id = ?
	`, progress, phase, formatTime(time.Now()), id)
}

func (r *JobsRepository) UpdateResult(ctx context.Context, id string, resultJSON []byte) (domain.Job, error) {
	return r.update(ctx, id, `
		UPDATE jobs
		SET result_json = ?, updated_at = ?
		WHERE id = ?
	`, resultJSON, formatTime(time.Now()), id)
}

func (r *JobsRepository) UpdateError(ctx context.Context, id string, code string, message string) (domain.Job, error) {
	return r.update(ctx, id, `
		UPDATE jobs
		SET error_code = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, code, message, formatTime(time.Now()), id)
}

func (r *JobsRepository) UpdateState(ctx context.Context, id string, expected domain.JobState, next domain.JobState) (domain.Job, error) {
	if !domain.CanTransition(expected, next) {
		return domain.Job{}, domain.ErrInvalidTransition
	}
	return r.update(ctx, id, `
		UPDATE jobs
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(next), formatTime(time.Now()), id, string(expected))
}

// FailInterrupted marque en échec les jobs restés running/muxing après un arrêt brutal.
// À appeler au démarrage, avant de lancer les workers.
func (r *JobsRepository) FailInterrupted(ctx context.Context, code, message string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, error_code = ?, error_message = ?, updated_at = ?
		WHERE state IN (?, ?)
	`, string(domain.JobFailed), code, message, formatTime(time.Now()), string(domain.JobRunning), string(domain.JobMuxing))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
