package domain

import (
	"encoding/json"
	"time"
)

// World est l'enregistrement normalisé d'une world VRChat.
// Il n'est jamais écrit partiellement: normalisation complète puis upsert.
type World struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AuthorID    string   `json:"authorId"`
	AuthorName  string   `json:"authorName"`
	Tags        []string `json:"tags"`

	Capacity            int `json:"capacity"`
	RecommendedCapacity int `json:"recommendedCapacity"`
	Visits              int `json:"visits"`
	Favorites           int `json:"favorites"`
	Popularity          int `json:"popularity"`
	Heat                int `json:"heat"`
	Occupants           int `json:"occupants"`
	Version             int `json:"version"`

	ReleaseStatus   string `json:"releaseStatus"`
	PublicationDate string `json:"publicationDate,omitempty"`

	ImageURL          string `json:"imageUrl,omitempty"`
	ThumbnailImageURL string `json:"thumbnailImageUrl,omitempty"`
	// ThumbnailKey est renseigné quand la miniature est présente dans le cache local.
	ThumbnailKey string `json:"thumbnailKey,omitempty"`

	SourceURL string `json:"sourceUrl,omitempty"`

	// SourceUpdatedAt à zéro signifie "inconnu".
	SourceCreatedAt time.Time `json:"sourceCreatedAt"`
	SourceUpdatedAt time.Time `json:"sourceUpdatedAt"`
	ScrapedAt       time.Time `json:"scrapedAt"`

	// Extra conserve les champs du provider qu'on ne modélise pas (dérive de schéma).
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// ThumbnailSource renvoie l'URL d'image à mettre en cache (thumbnailImageUrl en priorité).
func (w World) ThumbnailSource() string {
	if w.ThumbnailImageURL != "" {
		return w.ThumbnailImageURL
	}
	return w.ImageURL
}

// Identity identifie le compte authentifié auprès du provider.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// TimePrecision est la précision commune à tous les backends (TIMESTAMPTZ: microseconde).
const TimePrecision = time.Microsecond

// CanonicalTime ramène t en UTC à TimePrecision. Le zéro reste zéro.
func CanonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(TimePrecision)
}
