package domain

import "errors"

// Taxonomie des erreurs du pipeline. Les composants enveloppent ces sentinelles via %w.
var (
	ErrFetch               = errors.New("fetch failed")
	ErrParse               = errors.New("malformed manifest")
	ErrNoPlayableRendition = errors.New("no playable rendition")
	ErrAudioTrackNotFound  = errors.New("audio track not found")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrMux                 = errors.New("mux failed")

	// ErrFontResolution n'est jamais fatal: le téléchargement continue sans polices.
	ErrFontResolution = errors.New("font resolution failed")
)
