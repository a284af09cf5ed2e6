package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type TargetKind string

const (
	TargetVideo     TargetKind = "video"
	TargetAudioOnly TargetKind = "audio"
	TargetSubtitles TargetKind = "subtitles"
	TargetSignage   TargetKind = "signs"
)

// DownloadTarget est le choix de l'utilisateur.
// Height n'a de sens que pour TargetVideo (0 = première rendition du manifeste).
type DownloadTarget struct {
	Kind   TargetKind `json:"kind"`
	Height int        `json:"height,omitempty"`
}

func VideoTarget(height int) DownloadTarget {
	if height < 0 {
		height = 0
	}
	return DownloadTarget{Kind: TargetVideo, Height: height}
}

func (t DownloadTarget) String() string {
	if t.Kind == TargetVideo && t.Height > 0 {
		return strconv.Itoa(t.Height) + "p"
	}
	if t.Kind == "" {
		return string(TargetVideo)
	}
	return string(t.Kind)
}

// ParseDownloadTarget accepte "", "video", "720", "720p", "audio", "subtitles"/"sub", "signs"/"signage".
func ParseDownloadTarget(s string) (DownloadTarget, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "video":
		return VideoTarget(0), nil
	case "audio", "audio-only":
		return DownloadTarget{Kind: TargetAudioOnly}, nil
	case "subtitles", "sub", "subs":
		return DownloadTarget{Kind: TargetSubtitles}, nil
	case "signs", "signage":
		return DownloadTarget{Kind: TargetSignage}, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "p"))
	if err != nil || n <= 0 {
		return DownloadTarget{}, fmt.Errorf("invalid download target %q", s)
	}
	return VideoTarget(n), nil
}
