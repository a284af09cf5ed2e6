package app

import (
	"context"
	"errors"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

// CodedError permet aux executors de renvoyer un code d'erreur stable,
// persisté dans Job.errorCode.
//
// Message est le texte destiné à l'utilisateur (il nomme la phase en échec).
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

const (
	CodeInvalidParams       = "invalid_params"
	CodeFetch               = "fetch_error"
	CodeParse               = "parse_error"
	CodeNoPlayableRendition = "no_playable_rendition"
	CodeAudioTrackNotFound  = "audio_track_not_found"
	CodeAssetNotFound       = "asset_not_found"
	CodeMux                 = "mux_error"
	CodeIO                  = "io_error"
	CodeNotFound            = "not_found"
	CodeCanceled            = "canceled"
)

// errorCode mappe une erreur du pipeline sur son code stable.
func errorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, domain.ErrFetch):
		return CodeFetch
	case errors.Is(err, domain.ErrParse):
		return CodeParse
	case errors.Is(err, domain.ErrNoPlayableRendition):
		return CodeNoPlayableRendition
	case errors.Is(err, domain.ErrAudioTrackNotFound):
		return CodeAudioTrackNotFound
	case errors.Is(err, domain.ErrAssetNotFound):
		return CodeAssetNotFound
	case errors.Is(err, domain.ErrMux):
		return CodeMux
	case errors.Is(err, ports.ErrNotFound):
		return CodeNotFound
	default:
		return CodeIO
	}
}

func invalidParams(msg string) error {
	return &CodedError{Code: CodeInvalidParams, Message: msg}
}
