package app

import (
	"fmt"

	"github.com/grafov/m3u8"
)

const localPlaylistName = "manifest.m3u8"

// WriteLocalPlaylist régénère un manifeste media VOD listant les fichiers stagés
// (noms locaux, ordre du manifeste d'origine) et renvoie son chemin relatif.
func WriteLocalPlaylist(dir StagingDir, files []StagedFile) (string, error) {
	var segs []StagedFile
	var init *StagedFile
	for i := range files {
		if files[i].Init {
			init = &files[i]
			continue
		}
		segs = append(segs, files[i])
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("no staged segments in %s", dir.Name())
	}

	p, err := m3u8.NewMediaPlaylist(0, uint(len(segs)))
	if err != nil {
		return "", err
	}
	p.MediaType = m3u8.VOD
	if init != nil {
		p.SetDefaultMap(init.Name, 0, 0)
	}
	for _, s := range segs {
		if err := p.Append(s.Name, s.Duration, ""); err != nil {
			return "", fmt.Errorf("append %s: %w", s.Name, err)
		}
	}
	p.Close()

	if err := dir.WriteFile(localPlaylistName, p.Encode().Bytes()); err != nil {
		return "", err
	}
	return dir.Rel(localPlaylistName), nil
}
