package app

import (
	"regexp"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// Langue biélorusse: "be" ou "bel", insensible à la casse.
var reBelarusian = regexp.MustCompile(`(?i)^bel?$`)

func IsBelarusian(lang string) bool {
	return reBelarusian.MatchString(lang)
}

// SelectVideo choisit la rendition dont la hauteur est la plus proche de target.Height
// (premier rencontré en cas d'égalité). Sans hauteur demandée: la première rendition.
// false uniquement si le master ne contient aucune rendition.
func SelectVideo(master domain.ManifestGraph, target domain.DownloadTarget) (domain.Rendition, bool) {
	if len(master.Renditions) == 0 {
		return domain.Rendition{}, false
	}
	if target.Height <= 0 {
		return master.Renditions[0], true
	}

	best := 0
	bestDist := absInt(master.Renditions[0].Height() - target.Height)
	for i := 1; i < len(master.Renditions); i++ {
		d := absInt(master.Renditions[i].Height() - target.Height)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return master.Renditions[best], true
}

// SelectAudio applique la politique de piste: dub → piste biélorusse, sub → première piste non biélorusse.
func SelectAudio(video domain.Rendition, tt domain.TrackType) (domain.Rendition, bool) {
	for _, a := range video.Audio {
		switch tt {
		case domain.TrackDub:
			if IsBelarusian(a.Language) {
				return a, true
			}
		case domain.TrackSub:
			if !IsBelarusian(a.Language) {
				return a, true
			}
		}
	}
	return domain.Rendition{}, false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
