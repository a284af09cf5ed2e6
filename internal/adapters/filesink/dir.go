package filesink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// DirSink écrit les fichiers finaux dans un dossier: fichier temporaire puis rename.
// Un nom déjà pris reçoit un suffixe " (1)", " (2)"...
type DirSink struct {
	dir string
}

var _ ports.FileSink = (*DirSink)(nil)

func NewDirSink(dir string) *DirSink {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	return &DirSink{dir: dir}
}

func (s *DirSink) Dir() string { return s.dir }

func (s *DirSink) Save(ctx context.Context, r io.Reader, filename string, mimeType string) (ports.SavedFile, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return ports.SavedFile{}, errors.New("empty filename")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ports.SavedFile{}, fmt.Errorf("create destination: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return ports.SavedFile{}, err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return ports.SavedFile{}, err
	}

	final, err := s.reserve(name)
	if err != nil {
		cleanup()
		return ports.SavedFile{}, err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		cleanup()
		return ports.SavedFile{}, err
	}
	_ = os.Chmod(final, 0o644)

	return ports.SavedFile{
		Path:     final,
		Filename: filepath.Base(final),
		MimeType: mimeType,
		Bytes:    n,
	}, nil
}

// reserve renvoie le premier chemin libre pour name.
func (s *DirSink) reserve(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + " (" + strconv.Itoa(i) + ")" + ext
		}
		p := filepath.Join(s.dir, candidate)
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no free filename for %q", name)
}

func sanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ", "\x00", "").Replace(name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// ctxReader interrompt la copie quand le contexte est annulé.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
