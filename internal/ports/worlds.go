package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type WorldRepository interface {
	// Get renvoie ErrNotFound si l'id n'a jamais été stocké.
	Get(ctx context.Context, id string) (domain.World, error)
	// Upsert écrit l'enregistrement complet (last-write-wins).
	Upsert(ctx context.Context, world domain.World) error
	// List renvoie tous les enregistrements si limit <= 0.
	List(ctx context.Context, limit int) ([]domain.World, error)
}
