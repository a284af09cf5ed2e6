package app

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// Conventions de nommage des fichiers de sous-titres (suffixe exact).
const (
	FullSubtitlesSuffix = "субцітры.ass"
	SignageSuffix       = "надпісы.ass"
)

func findBySuffix(list []domain.SubtitleAsset, suffix string) (domain.SubtitleAsset, bool) {
	for _, s := range list {
		if strings.HasSuffix(s.Path, suffix) {
			return s, true
		}
	}
	return domain.SubtitleAsset{}, false
}

// ResolveSubtitles choisit le sous-titre à embarquer:
//   - sub: sous-titres complets, sinon le premier de la liste (ordre d'origine)
//   - dub: uniquement les panneaux, sans repli
func ResolveSubtitles(list []domain.SubtitleAsset, tt domain.TrackType) (domain.SubtitleAsset, bool) {
	switch tt {
	case domain.TrackSub:
		if s, ok := findBySuffix(list, FullSubtitlesSuffix); ok {
			return s, true
		}
		if len(list) > 0 {
			return list[0], true
		}
	case domain.TrackDub:
		return findBySuffix(list, SignageSuffix)
	}
	return domain.SubtitleAsset{}, false
}

// FindSubtitle sert les cibles logiques "subtitles" et "signs".
func FindSubtitle(list []domain.SubtitleAsset, kind domain.TargetKind) (domain.SubtitleAsset, bool) {
	switch kind {
	case domain.TargetSubtitles:
		return ResolveSubtitles(list, domain.TrackSub)
	case domain.TargetSignage:
		return findBySuffix(list, SignageSuffix)
	}
	return domain.SubtitleAsset{}, false
}

// AvailableTrackTypes déduit les variantes proposables d'après les fichiers de sous-titres.
// Ni sous-titres complets ni panneaux mais une liste non vide: sub par défaut.
// Liste vide: rien.
func AvailableTrackTypes(list []domain.SubtitleAsset) []domain.TrackType {
	var out []domain.TrackType
	if _, ok := findBySuffix(list, FullSubtitlesSuffix); ok {
		out = append(out, domain.TrackSub)
	}
	if _, ok := findBySuffix(list, SignageSuffix); ok {
		out = append(out, domain.TrackDub)
	}
	if len(out) == 0 && len(list) > 0 {
		out = append(out, domain.TrackSub)
	}
	return out
}

func FontNames(asset domain.SubtitleAsset) []string {
	if len(asset.Fonts) == 0 {
		return nil
	}
	out := make([]string, len(asset.Fonts))
	copy(out, asset.Fonts)
	return out
}

// ResolveFontURLs interroge le service de polices. Une erreur est un avertissement (ErrFontResolution).
func ResolveFontURLs(ctx context.Context, resolver ports.FontResolver, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: no font service configured", domain.ErrFontResolution)
	}
	urls, err := resolver.ResolveFonts(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFontResolution, err)
	}
	if urls == nil {
		return nil, fmt.Errorf("%w: empty response", domain.ErrFontResolution)
	}
	return urls, nil
}

var fontMimeTypes = map[string]string{
	"ttf":  "application/x-truetype-font",
	"otf":  "font/otf",
	"woff": "font/woff",
}

// FontMimeType déduit le type MIME d'une police depuis son extension.
func FontMimeType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if m, ok := fontMimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}
