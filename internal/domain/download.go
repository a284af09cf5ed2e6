package domain

import "time"

// Download est une entrée d'historique: un fichier effectivement remis à l'utilisateur.
type Download struct {
	ID        string
	JobID     string
	VideoID   string
	Title     string
	Target    string
	TrackType string
	Path      string
	Filename  string
	MimeType  string
	Bytes     int64
	Warnings  []string
	CreatedAt time.Time
}
