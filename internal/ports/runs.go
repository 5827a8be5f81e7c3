package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type RunRepository interface {
	Create(ctx context.Context, run domain.Run) (domain.Run, error)
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
	// Finish passe un run "running" à son état terminal avec le rapport final.
	Finish(ctx context.Context, id string, state domain.RunState, report domain.BatchReport) (domain.Run, error)
	// MarkInterrupted clôt les runs restés "running" (process arrêté en cours de run).
	MarkInterrupted(ctx context.Context) (int64, error)
}
