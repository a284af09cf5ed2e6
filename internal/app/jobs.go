package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// Topics publiés sur le bus pour le cycle de vie d'un job.
const (
	TopicJobCreated   = "job.created"
	TopicJobStarted   = "job.started"
	TopicJobProgress  = "job.progress"
	TopicJobMuxing    = "job.muxing"
	TopicJobCompleted = "job.completed"
	TopicJobFailed    = "job.failed"
	TopicJobCanceled  = "job.canceled"
)

const jobTypeNoop = "noop"

type JobService struct {
	repo ports.JobRepository
	bus  ports.EventBus
	now  func() time.Time
}

func NewJobService(repo ports.JobRepository, bus ports.EventBus) *JobService {
	return &JobService{repo: repo, bus: bus, now: time.Now}
}

type CreateJobRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// JobDTO est la vue JSON d'un job (API, bus, CLI).
type JobDTO struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	State     domain.JobState `json:"state"`
	Progress  float64         `json:"progress"`
	Phase     string          `json:"phase,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func ToJobDTO(j domain.Job) JobDTO {
	dto := JobDTO{
		ID:        j.ID,
		Type:      j.Type,
		State:     j.State,
		Progress:  j.Progress,
		Phase:     j.Phase,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		ErrorCode: j.ErrorCode,
		Error:     j.ErrorMessage,
	}
	if len(j.ParamsJSON) > 0 {
		dto.Params = json.RawMessage(j.ParamsJSON)
	}
	if len(j.ResultJSON) > 0 {
		dto.Result = json.RawMessage(j.ResultJSON)
	}
	return dto
}

func PublishJobEvent(bus ports.EventBus, topic string, job domain.Job) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(ToJobDTO(job))
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}

// canonicalParams valide les paramètres selon le type et renvoie la forme stockée.
// Les épisodes sont réécrits avec type et cible normalisés, pour que l'historique soit lisible.
func canonicalParams(jobType string, raw json.RawMessage) ([]byte, error) {
	switch jobType {
	case jobTypeNoop:
		return []byte(raw), nil
	case domain.JobTypeEpisodeDownload:
		p, tt, target, err := ParseEpisodeDownloadParams(raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(domain.EpisodeDownloadParams{VideoID: p.VideoID, Type: string(tt), Target: target.String()})
	default:
		return nil, invalidParams(fmt.Sprintf("unsupported job type %q", jobType))
	}
}

func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (JobDTO, error) {
	jobType := strings.TrimSpace(req.Type)
	if jobType == "" {
		return JobDTO{}, invalidParams("missing type")
	}
	params, err := canonicalParams(jobType, req.Params)
	if err != nil {
		return JobDTO{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, domain.Job{
		ID:         xid.New().String(),
		Type:       jobType,
		State:      domain.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
		ParamsJSON: params,
	})
	if err != nil {
		return JobDTO{}, err
	}
	PublishJobEvent(s.bus, TopicJobCreated, created)
	return ToJobDTO(created), nil
}

func (s *JobService) Get(ctx context.Context, id string) (JobDTO, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return JobDTO{}, err
	}
	return ToJobDTO(job), nil
}

// List accepte des noms d'états ("queued", "running", ...); un nom inconnu est invalid_params.
func (s *JobService) List(ctx context.Context, limit int, states ...string) ([]JobDTO, error) {
	filter := make([]domain.JobState, 0, len(states))
	for _, raw := range states {
		st := domain.JobState(strings.ToLower(strings.TrimSpace(raw)))
		if st == "" {
			continue
		}
		if !st.IsTerminal() && !st.IsActive() && st != domain.JobQueued {
			return nil, invalidParams(fmt.Sprintf("unknown job state %q", raw))
		}
		filter = append(filter, st)
	}
	jobs, err := s.repo.List(ctx, limit, filter...)
	if err != nil {
		return nil, err
	}
	out := make([]JobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ToJobDTO(j))
	}
	return out, nil
}

// Cancel annule un job non terminal. Un job déjà terminé est renvoyé tel quel.
// Le worker voit l'état canceled à sa prochaine vérification et coupe le pipeline.
func (s *JobService) Cancel(ctx context.Context, id string) (JobDTO, error) {
	// Le worker peut faire avancer l'état entre la lecture et l'écriture: quelques essais suffisent.
	for attempt := 0; attempt < 3; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return JobDTO{}, err
		}
		if current.State.IsTerminal() {
			return ToJobDTO(current), nil
		}
		updated, err := s.repo.UpdateState(ctx, id, current.State, domain.JobCanceled)
		if err == nil {
			PublishJobEvent(s.bus, TopicJobCanceled, updated)
			return ToJobDTO(updated), nil
		}
		// ErrNotFound ici = l'état a changé entre-temps; Get tranchera au tour suivant.
		if !errors.Is(err, ports.ErrNotFound) {
			return JobDTO{}, err
		}
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return JobDTO{}, err
	}
	return ToJobDTO(current), nil
}
