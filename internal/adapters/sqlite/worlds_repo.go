package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type WorldsRepository struct {
	db *sql.DB
}

func NewWorldsRepository(db *sql.DB) *WorldsRepository {
	return &WorldsRepository{db: db}
}

const worldColumns = `id, name, description, author_id, author_name, tags_json,
	capacity, recommended_capacity, visits, favorites, popularity, heat, occupants, version,
	release_status, publication_date, image_url, thumbnail_image_url, thumbnail_key, source_url,
	source_created_at, source_updated_at, scraped_at, extra_json`

func (r *WorldsRepository) Get(ctx context.Context, id string) (domain.World, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+worldColumns+` FROM worlds WHERE id = ?`, id)
	w, err := scanWorld(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.World{}, ports.ErrNotFound
		}
		return domain.World{}, err
	}
	return w, nil
}

// Upsert remplace l'enregistrement entier (last-write-wins).
func (r *WorldsRepository) Upsert(ctx context.Context, w domain.World) error {
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	extra := w.Extra
	if extra == nil {
		extra = map[string]json.RawMessage{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO worlds(`+worldColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			tags_json = excluded.tags_json,
			capacity = excluded.capacity,
			recommended_capacity = excluded.recommended_capacity,
			visits = excluded.visits,
			favorites = excluded.favorites,
			popularity = excluded.popularity,
			heat = excluded.heat,
			occupants = excluded.occupants,
			version = excluded.version,
			release_status = excluded.release_status,
			publication_date = excluded.publication_date,
			image_url = excluded.image_url,
			thumbnail_image_url = excluded.thumbnail_image_url,
			thumbnail_key = excluded.thumbnail_key,
			source_url = excluded.source_url,
			source_created_at = excluded.source_created_at,
			source_updated_at = excluded.source_updated_at,
			scraped_at = excluded.scraped_at,
			extra_json = excluded.extra_json
	`, w.ID, w.Name, w.Description, w.AuthorID, w.AuthorName, string(tagsJSON),
		w.Capacity, w.RecommendedCapacity, w.Visits, w.Favorites, w.Popularity, w.Heat, w.Occupants, w.Version,
		w.ReleaseStatus, w.PublicationDate, w.ImageURL, w.ThumbnailImageURL, w.ThumbnailKey, w.SourceURL,
		formatTime(w.SourceCreatedAt), formatTime(w.SourceUpdatedAt), formatTime(w.ScrapedAt), string(extraJSON))
	return err
}

// List trie du plus ancien scrape au plus récent (ordre naturel d'un refresh).
func (r *WorldsRepository) List(ctx context.Context, limit int) ([]domain.World, error) {
	q := `SELECT ` + worldColumns + ` FROM worlds ORDER BY scraped_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.World{}
	for rows.Next() {
		w, err := scanWorld(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(s rowScanner) (domain.World, error) {
	var w domain.World
	var tagsJSON, extraJSON, createdAt, updatedAt, scrapedAt string
	err := s.Scan(&w.ID, &w.Name, &w.Description, &w.AuthorID, &w.AuthorName, &tagsJSON,
		&w.Capacity, &w.RecommendedCapacity, &w.Visits, &w.Favorites, &w.Popularity, &w.Heat, &w.Occupants, &w.Version,
		&w.ReleaseStatus, &w.PublicationDate, &w.ImageURL, &w.ThumbnailImageURL, &w.ThumbnailKey, &w.SourceURL,
		&createdAt, &updatedAt, &scrapedAt, &extraJSON)
	if err != nil {
		return domain.World{}, err
	}
	// JSON corrompu: on garde le reste de l'enregistrement.
	_ = json.Unmarshal([]byte(tagsJSON), &w.Tags)
	var extra map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extraJSON), &extra); err == nil && len(extra) > 0 {
		w.Extra = extra
	}
	w.SourceCreatedAt = parseTime(createdAt)
	w.SourceUpdatedAt = parseTime(updatedAt)
	w.ScrapedAt = parseTime(scrapedAt)
	return w, nil
}
