package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type SessionStore interface {
	// Load renvoie ErrNotFound si aucune session n'a été persistée.
	Load(ctx context.Context) (domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Clear(ctx context.Context) error
}
