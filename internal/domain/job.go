package domain

import (
	"errors"
	"time"
)

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobMuxing    JobState = "muxing"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// JobTypeEpisodeDownload exécute le pipeline manifeste → segments → mux pour un épisode.
const JobTypeEpisodeDownload = "episode.download"

// jobTransitions: cycle de vie d'un téléchargement.
// queued → running → muxing → completed; échec et annulation possibles tant que le job n'est pas terminé.
var jobTransitions = map[JobState][]JobState{
	JobQueued:  {JobRunning, JobCanceled, JobFailed},
	JobRunning: {JobMuxing, JobCanceled, JobFailed},
	JobMuxing:  {JobCompleted, JobCanceled, JobFailed},
}

func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// IsActive: un worker détient le job (running ou muxing).
func (s JobState) IsActive() bool {
	return s == JobRunning || s == JobMuxing
}

type Job struct {
	ID        string
	Type      string
	State     JobState
	Progress  float64
	Phase     string
	CreatedAt time.Time
	UpdatedAt time.Time

	ParamsJSON   []byte
	ResultJSON   []byte
	ErrorCode    string
	ErrorMessage string
}

var ErrInvalidTransition = errors.New("invalid job state transition")

// CanTransition accepte from == to (écriture idempotente) pour un état connu.
func CanTransition(from, to JobState) bool {
	next, known := jobTransitions[from]
	if from == to {
		return known || from.IsTerminal()
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// EpisodeDownloadParams est le contenu de Job.ParamsJSON pour JobTypeEpisodeDownload.
type EpisodeDownloadParams struct {
	VideoID string `json:"videoId"`
	Type    string `json:"type"`
	Target  string `json:"target,omitempty"`
}
