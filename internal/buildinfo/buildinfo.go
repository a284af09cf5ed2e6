package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Injectées via -ldflags, par exemple :
//
//	-X github.com/bielarusajed/anibel-dl/internal/buildinfo.Version=v0.3.0
//	-X github.com/bielarusajed/anibel-dl/internal/buildinfo.Commit=abcdef
//	-X github.com/bielarusajed/anibel-dl/internal/buildinfo.Date=2026-10-01
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Current complète le commit depuis les infos VCS du binaire quand ldflags ne l'a pas fourni.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	if i.Commit != "" {
		c := i.Commit
		if len(c) > 12 {
			c = c[:12]
		}
		b.WriteString(" (" + c + ")")
	}
	if i.Date != "" {
		b.WriteString(" " + i.Date)
	}
	return b.String()
}

// UserAgent est envoyé à l'API vidéo et aux serveurs de segments.
func UserAgent() string {
	return "anibel-dl/" + Version
}
