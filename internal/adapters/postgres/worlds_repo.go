package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type WorldsRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewWorldsRepository(db *pgxpool.Pool, timeout time.Duration) *WorldsRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WorldsRepository{db: db, timeout: timeout}
}

func (r *WorldsRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

const worldColumns = `id, name, description, author_id, author_name, tags,
	capacity, recommended_capacity, visits, favorites, popularity, heat, occupants, version,
	release_status, publication_date, image_url, thumbnail_image_url, thumbnail_key, source_url,
	source_created_at, source_updated_at, scraped_at, extra`

func (r *WorldsRepository) Get(ctx context.Context, id string) (domain.World, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	w, err := scanWorld(r.db.QueryRow(ctx, `SELECT `+worldColumns+` FROM worlds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.World{}, ports.ErrNotFound
	}
	return w, err
}

func (r *WorldsRepository) Upsert(ctx context.Context, w domain.World) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	extra := w.Extra
	if extra == nil {
		extra = map[string]json.RawMessage{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO worlds(`+worldColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			author_id = EXCLUDED.author_id,
			author_name = EXCLUDED.author_name,
			tags = EXCLUDED.tags,
			capacity = EXCLUDED.capacity,
			recommended_capacity = EXCLUDED.recommended_capacity,
			visits = EXCLUDED.visits,
			favorites = EXCLUDED.favorites,
			popularity = EXCLUDED.popularity,
			heat = EXCLUDED.heat,
			occupants = EXCLUDED.occupants,
			version = EXCLUDED.version,
			release_status = EXCLUDED.release_status,
			publication_date = EXCLUDED.publication_date,
			image_url = EXCLUDED.image_url,
			thumbnail_image_url = EXCLUDED.thumbnail_image_url,
			thumbnail_key = EXCLUDED.thumbnail_key,
			source_url = EXCLUDED.source_url,
			source_created_at = EXCLUDED.source_created_at,
			source_updated_at = EXCLUDED.source_updated_at,
			scraped_at = EXCLUDED.scraped_at,
			extra = EXCLUDED.extra
	`, w.ID, w.Name, w.Description, w.AuthorID, w.AuthorName, tags,
		w.Capacity, w.RecommendedCapacity, w.Visits, w.Favorites, w.Popularity, w.Heat, w.Occupants, w.Version,
		w.ReleaseStatus, w.PublicationDate, w.ImageURL, w.ThumbnailImageURL, w.ThumbnailKey, w.SourceURL,
		nullableTime(w.SourceCreatedAt), nullableTime(w.SourceUpdatedAt), domain.CanonicalTime(w.ScrapedAt), string(extraJSON))
	return err
}

func (r *WorldsRepository) List(ctx context.Context, limit int) ([]domain.World, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := `SELECT ` + worldColumns + ` FROM worlds ORDER BY scraped_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, q, args...)
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

func scanWorld(row pgx.Row) (domain.World, error) {
	var w domain.World
	var createdAt, updatedAt *time.Time
	var extraJSON []byte
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.AuthorID, &w.AuthorName, &w.Tags,
		&w.Capacity, &w.RecommendedCapacity, &w.Visits, &w.Favorites, &w.Popularity, &w.Heat, &w.Occupants, &w.Version,
		&w.ReleaseStatus, &w.PublicationDate, &w.ImageURL, &w.ThumbnailImageURL, &w.ThumbnailKey, &w.SourceURL,
		&createdAt, &updatedAt, &w.ScrapedAt, &extraJSON)
	if err != nil {
		return domain.World{}, err
	}
	w.SourceCreatedAt = fromNullable(createdAt)
	w.SourceUpdatedAt = fromNullable(updatedAt)
	w.ScrapedAt = w.ScrapedAt.UTC()
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(extraJSON, &extra); err == nil && len(extra) > 0 {
		w.Extra = extra
	}
	return w, nil
}
