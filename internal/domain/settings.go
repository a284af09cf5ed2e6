package domain

type Settings struct {
	// Dossier où les fichiers finaux sont déposés.
	Destination string `json:"destination"`

	// Concurrence: nombre de jobs en parallèle, et fenêtre de segments en vol (partagée).
	MaxWorkers             int `json:"maxWorkers"`
	MaxConcurrentDownloads int `json:"maxConcurrentDownloads"`

	// Cadence max des requêtes de segments (0 = illimité).
	SegmentRequestsPerSecond float64 `json:"segmentRequestsPerSecond"`

	// Âge (minutes) au-delà duquel un dossier de staging orphelin est supprimé.
	StagingMaxAgeMinutes int `json:"stagingMaxAgeMinutes"`
}

func DefaultSettings() Settings {
	return Settings{
		Destination:            "videos",
		MaxWorkers:             1,
		MaxConcurrentDownloads: 4,
		StagingMaxAgeMinutes:   360,
	}
}
