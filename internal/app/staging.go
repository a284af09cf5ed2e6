package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const stagingPrefix = "op-"

// StagingArea est l'espace de travail privé d'une seule opération.
// Tout ce qui y est écrit disparaît au Teardown, succès ou échec.
type StagingArea struct {
	root string
}

// NewStagingArea crée <parent>/op-<opID> avec des permissions privées.
func NewStagingArea(parent, opID string) (*StagingArea, error) {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create staging parent: %w", err)
	}
	root := filepath.Join(parent, stagingPrefix+opID)
	if err := os.Mkdir(root, 0o700); err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	return &StagingArea{root: root}, nil
}

func (s *StagingArea) Root() string { return s.root }

// Path renvoie le chemin absolu d'un nom relatif, refusé s'il sort de la zone.
func (s *StagingArea) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid staging path %q", rel)
	}
	return filepath.Join(s.root, clean), nil
}

// Dir crée (si besoin) un sous-dossier et le renvoie.
func (s *StagingArea) Dir(name string) (StagingDir, error) {
	p, err := s.Path(name)
	if err != nil {
		return StagingDir{}, err
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return StagingDir{}, err
	}
	return StagingDir{area: s, name: filepath.ToSlash(filepath.Clean(name))}, nil
}

func (s *StagingArea) WriteFile(rel string, data []byte) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

func (s *StagingArea) Open(rel string) (*os.File, error) {
	p, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove supprime des fichiers; un fichier déjà absent n'est pas une erreur.
func (s *StagingArea) Remove(rels ...string) error {
	var errs []error
	for _, rel := range rels {
		p, err := s.Path(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveDir supprime un sous-dossier et son contenu.
func (s *StagingArea) RemoveDir(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// List renvoie les fichiers (pas les dossiers) d'un sous-dossier, triés par nom.
func (s *StagingArea) List(name string) ([]string, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// Teardown détruit toute la zone. Idempotent.
func (s *StagingArea) Teardown() error {
	if s == nil || s.root == "" {
		return nil
	}
	return os.RemoveAll(s.root)
}

// StagingDir est un sous-dossier nommé (video/, audio/, fonts/).
type StagingDir struct {
	area *StagingArea
	name string
}

func (d StagingDir) Name() string { return d.name }

// Rel renvoie le chemin relatif à la racine de la zone.
func (d StagingDir) Rel(file string) string { return d.name + "/" + file }

func (d StagingDir) WriteFile(file string, data []byte) error {
	return d.area.WriteFile(d.Rel(file), data)
}

// WriteFrom copie r dans le fichier et renvoie le nombre d'octets écrits.
func (d StagingDir) WriteFrom(file string, r io.Reader) (int64, error) {
	p, err := d.area.Path(d.Rel(file))
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (d StagingDir) writeBytes(file string, data []byte) (int64, error) {
	return d.WriteFrom(file, bytes.NewReader(data))
}

// SweepResult liste les dossiers d'opérations supprimés par SweepStaleStaging.
type SweepResult struct {
	Removed []string
	Errors  []error
}

// SweepStaleStaging supprime les dossiers op-* plus vieux que maxAge
// (laissés par un crash: le Teardown normal n'a pas eu lieu).
func SweepStaleStaging(parent string, maxAge time.Duration, logger zerolog.Logger) SweepResult {
	res := SweepResult{}
	parent = strings.TrimSpace(parent)
	if parent == "" {
		return res
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			res.Errors = append(res.Errors, err)
		}
		return res
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		dir := filepath.Join(parent, e.Name())
		info, err := e.Info()
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Str("path", dir).Msg("failed to remove stale staging directory")
			res.Errors = append(res.Errors, err)
			continue
		}
		logger.Info().Str("path", dir).Dur("age", time.Since(info.ModTime())).Msg("removed stale staging directory")
		res.Removed = append(res.Removed, dir)
	}
	return res
}
