package domain

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Segment est une unité téléchargeable d'une rendition.
// Init marque le segment d'initialisation (EXT-X-MAP), récupéré une seule fois et en premier.
// Length > 0 restreint le segment à la sous-plage [Offset, Offset+Length) de l'URI (EXT-X-BYTERANGE).
type Segment struct {
	URI      string  `json:"uri"`
	Duration float64 `json:"duration,omitempty"`
	Init     bool    `json:"init,omitempty"`
	Offset   int64   `json:"offset,omitempty"`
	Length   int64   `json:"length,omitempty"`
}

// Rendition est une variante sélectionnable (vidéo ou piste audio).
// Les pistes audio d'une rendition vidéo sont elles-mêmes des renditions (copies possédées).
type Rendition struct {
	URI        string      `json:"uri"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Bandwidth  uint32      `json:"bandwidth,omitempty"`
	GroupID    string      `json:"groupId,omitempty"`
	Language   string      `json:"language,omitempty"`
	Name       string      `json:"name,omitempty"`

	Audio []Rendition `json:"audio,omitempty"`

	Init     *Segment  `json:"init,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Height renvoie 0 quand la résolution est absente.
func (r Rendition) Height() int {
	if r.Resolution == nil {
		return 0
	}
	return r.Resolution.Height
}

type ManifestKind string

const (
	ManifestMaster ManifestKind = "master"
	ManifestMedia  ManifestKind = "media"
)

// ManifestGraph est le résultat d'un fetch de manifeste:
// Master → Renditions (sans segments), Media → Media (segments ordonnés).
type ManifestGraph struct {
	Kind       ManifestKind
	Renditions []Rendition
	Media      Rendition
}

type SubtitleAsset struct {
	Path  string   `json:"path"`
	Fonts []string `json:"fonts"`
}

type TrackType string

const (
	TrackSub TrackType = "sub"
	TrackDub TrackType = "dub"
)

func ParseTrackType(s string) (TrackType, bool) {
	switch TrackType(s) {
	case TrackSub, TrackDub:
		return TrackType(s), true
	default:
		return "", false
	}
}

// VideoInfo décrit un média côté source: emplacement du manifeste et sous-titres annexes.
type VideoInfo struct {
	VideoID   string          `json:"videoId"`
	Title     string          `json:"title"`
	Host      string          `json:"host"`
	HLS       string          `json:"hls"`
	Stream    string          `json:"stream,omitempty"`
	GroupBy   string          `json:"groupBy,omitempty"`
	Episode   int             `json:"episode,omitempty"`
	Subtitles []SubtitleAsset `json:"subtitles"`
}

type ProgressState struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase,omitempty"`
}

// Fraction renvoie l'avancement dans [0,1].
func (p ProgressState) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseManifestResolving  Phase = "manifest_resolving"
	PhaseRenditionSelecting Phase = "rendition_selecting"
	PhaseAssetResolving     Phase = "asset_resolving"
	PhaseFetchingVideo      Phase = "fetching_video"
	PhaseFetchingAudio      Phase = "fetching_audio"
	PhaseStaging            Phase = "staging"
	PhaseMuxing             Phase = "muxing"
	PhaseFinalizing         Phase = "finalizing"
	PhaseDone               Phase = "done"
	PhaseFailed             Phase = "failed"
)

func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Label est le libellé affiché à l'utilisateur pendant la phase.
func (p Phase) Label() string {
	switch p {
	case PhaseManifestResolving:
		return "Fetching manifests…"
	case PhaseRenditionSelecting:
		return "Selecting renditions…"
	case PhaseAssetResolving:
		return "Resolving subtitles…"
	case PhaseFetchingVideo:
		return "Downloading video…"
	case PhaseFetchingAudio:
		return "Downloading audio…"
	case PhaseStaging:
		return "Downloading subtitles and fonts…"
	case PhaseMuxing:
		return "Merging downloaded files…"
	case PhaseFinalizing:
		return "Saving file…"
	case PhaseDone:
		return "Done!"
	case PhaseFailed:
		return "Failed"
	default:
		return ""
	}
}
