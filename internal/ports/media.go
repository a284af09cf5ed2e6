package ports

import (
	"context"
	"io"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// VideoSource fournit les métadonnées d'un média (manifeste, sous-titres annexes).
type VideoSource interface {
	Video(ctx context.Context, videoID string) (domain.VideoInfo, error)
}

// FontResolver traduit des noms de familles de polices en URLs téléchargeables.
// Best-effort: un échec n'interrompt jamais un téléchargement.
type FontResolver interface {
	ResolveFonts(ctx context.Context, fontNames []string) ([]string, error)
}

type SavedFile struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Bytes    int64  `json:"bytes"`
}

// FileSink remet un fichier final à l'utilisateur.
type FileSink interface {
	Save(ctx context.Context, r io.Reader, filename string, mimeType string) (SavedFile, error)
}

type StreamCopy string

const (
	CopyAll   StreamCopy = "all"
	CopyVideo StreamCopy = "video"
	CopyAudio StreamCopy = "audio"
)

type MuxAttachment struct {
	Path     string
	MimeType string
}

// MuxRequest décrit une invocation du moteur de mux. Les chemins sont relatifs à WorkDir.
// Inputs: une liste de segments façon manifeste ou des conteneurs intermédiaires.
type MuxRequest struct {
	WorkDir     string
	Inputs      []string
	Copy        StreamCopy
	Attachments []MuxAttachment
	Output      string
}

// Muxer est opaque: l'appelant n'inspecte jamais ses logs, seul l'échec compte.
type Muxer interface {
	Mux(ctx context.Context, req MuxRequest) error
}
