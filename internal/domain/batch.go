package domain

import "time"

type AssetOutcome string

const (
	AssetDownloaded AssetOutcome = "downloaded"
	AssetSkipped    AssetOutcome = "skipped"
	AssetFailed     AssetOutcome = "failed"
)

type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchCached  FetchStatus = "cached"
	FetchFailure FetchStatus = "failure"
)

// AbortedReason est la raison inscrite pour les URLs non tentées après un échec d'auth.
const AbortedReason = "aborted: auth failure upstream"

type FailureEntry struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

type ThumbnailStats struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// SuccessRate renvoie la part de miniatures disponibles (téléchargées ou déjà présentes).
func (s ThumbnailStats) SuccessRate() float64 {
	total := s.Downloaded + s.Skipped + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Downloaded+s.Skipped) / float64(total)
}

// BatchReport résume un run. Il est construit par le runner puis n'est plus modifié.
type BatchReport struct {
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Cached     int            `json:"cached"`
	Failed     int            `json:"failed"`
	Failures   []FailureEntry `json:"failures"`
	Thumbnails ThumbnailStats `json:"thumbnails"`

	// Aborted: le run s'est arrêté sur une erreur d'authentification.
	Aborted bool `json:"aborted"`
	// Canceled: interruption opérateur entre deux items.
	Canceled bool `json:"canceled"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Attempted renvoie le nombre d'items traités (hors URLs abandonnées).
func (r BatchReport) Attempted() int {
	n := r.Succeeded + r.Cached + r.Failed
	for _, f := range r.Failures {
		if f.Reason == AbortedReason {
			n--
		}
	}
	return n
}

func (r BatchReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
