package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const defaultSessionKey = "vrchat"

// SessionRepository persiste la session provider sous une clé unique.
type SessionRepository struct {
	db  *sql.DB
	key string
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, key: defaultSessionKey}
}

func (r *SessionRepository) Load(ctx context.Context) (domain.Session, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM sessions WHERE key = ?`, r.key).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, ports.ErrNotFound
		}
		return domain.Session{}, err
	}
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		// Corrompu: équivalent à "pas de session", un login complet suivra.
		return domain.Session{}, ports.ErrNotFound
	}
	return s, nil
}

func (r *SessionRepository) Save(ctx context.Context, s domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, r.key, string(b), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SessionRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, r.key)
	return err
}
