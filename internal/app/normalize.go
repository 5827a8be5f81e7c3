package app

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

// worldPayload est la forme typée de GET worlds/{id}. Les clés non listées
// ici finissent dans World.Extra.
type worldPayload struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	AuthorID            string    `json:"authorId"`
	AuthorName          string    `json:"authorName"`
	Tags                []string  `json:"tags"`
	Capacity            looseInt  `json:"capacity"`
	RecommendedCapacity looseInt  `json:"recommendedCapacity"`
	Visits              looseInt  `json:"visits"`
	Favorites           looseInt  `json:"favorites"`
	Popularity          looseInt  `json:"popularity"`
	Heat                looseInt  `json:"heat"`
	Occupants           looseInt  `json:"occupants"`
	Version             looseInt  `json:"version"`
	ReleaseStatus       string    `json:"releaseStatus"`
	PublicationDate     string    `json:"publicationDate"`
	ImageURL            string    `json:"imageUrl"`
	ThumbnailImageURL   string    `json:"thumbnailImageUrl"`
	CreatedAt           looseTime `json:"created_at"`
	UpdatedAt           looseTime `json:"updated_at"`
}

var knownWorldKeys = map[string]bool{
	"id": true, "name": true, "description": true, "authorId": true, "authorName": true,
	"tags": true, "capacity": true, "recommendedCapacity": true, "visits": true,
	"favorites": true, "popularity": true, "heat": true, "occupants": true, "version": true,
	"releaseStatus": true, "publicationDate": true, "imageUrl": true, "thumbnailImageUrl": true,
	"created_at": true, "updated_at": true,
}

// NormalizeWorld valide et convertit le payload brut. L'id doit correspondre à la requête.
func NormalizeWorld(raw []byte, wantID, sourceURL string, scrapedAt time.Time) (domain.World, error) {
	var p worldPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.World{}, codedErr(CodeParseError, "decode world payload", err)
	}
	if p.ID == "" {
		return domain.World{}, codedErr(CodeParseError, "world payload without id", nil)
	}
	if !strings.EqualFold(p.ID, wantID) {
		return domain.World{}, codedErr(CodeParseError, "world id mismatch: got "+p.ID, nil)
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return domain.World{}, codedErr(CodeParseError, "decode world payload", err)
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if knownWorldKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}

	return domain.World{
		ID:                  wantID,
		Name:                p.Name,
		Description:         p.Description,
		AuthorID:            p.AuthorID,
		AuthorName:          p.AuthorName,
		Tags:                p.Tags,
		Capacity:            int(p.Capacity),
		RecommendedCapacity: int(p.RecommendedCapacity),
		Visits:              int(p.Visits),
		Favorites:           int(p.Favorites),
		Popularity:          int(p.Popularity),
		Heat:                int(p.Heat),
		Occupants:           int(p.Occupants),
		Version:             int(p.Version),
		ReleaseStatus:       p.ReleaseStatus,
		PublicationDate:     p.PublicationDate,
		ImageURL:            p.ImageURL,
		ThumbnailImageURL:   p.ThumbnailImageURL,
		SourceURL:           sourceURL,
		SourceCreatedAt:     domain.CanonicalTime(time.Time(p.CreatedAt)),
		SourceUpdatedAt:     domain.CanonicalTime(time.Time(p.UpdatedAt)),
		ScrapedAt:           domain.CanonicalTime(scrapedAt),
		Extra:               extra,
	}, nil
}

// looseInt accepte un nombre, une chaîne numérique ou null.
type looseInt int

func (n *looseInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = looseInt(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = looseInt(f)
	return nil
}

// looseTime: une date absente ou illisible vaut zéro ("inconnue").
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = looseTime{}
		return nil
	}
	v, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		*t = looseTime{}
		return nil
	}
	*t = looseTime(v.UTC())
	return nil
}
