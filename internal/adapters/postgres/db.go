package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS worlds (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	author_id TEXT NOT NULL DEFAULT '',
	author_name TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	capacity INTEGER NOT NULL DEFAULT 0,
	recommended_capacity INTEGER NOT NULL DEFAULT 0,
	visits INTEGER NOT NULL DEFAULT 0,
	favorites INTEGER NOT NULL DEFAULT 0,
	popularity INTEGER NOT NULL DEFAULT 0,
	heat INTEGER NOT NULL DEFAULT 0,
	occupants INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0,
	release_status TEXT NOT NULL DEFAULT '',
	publication_date TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	thumbnail_image_url TEXT NOT NULL DEFAULT '',
	thumbnail_key TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	source_created_at TIMESTAMPTZ,
	source_updated_at TIMESTAMPTZ,
	scraped_at TIMESTAMPTZ NOT NULL,
	extra JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_worlds_scraped_at ON worlds(scraped_at);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	refresh BOOLEAN NOT NULL DEFAULT FALSE,
	total INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	report JSONB
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Open crée le pool et garantit le schéma.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctxOpen, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctxOpen, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctxOpen); err != nil {
		pool.Close()
		return nil, err
	}
	if err := EnsureSchema(ctxOpen, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := domain.CanonicalTime(t)
	return &u
}

func fromNullable(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
