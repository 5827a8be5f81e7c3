package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type AssetCache interface {
	Has(key string) bool
	// Download renvoie une erreur uniquement avec AssetFailed.
	Download(ctx context.Context, rawURL, key string) (domain.AssetOutcome, error)
}

// ErrorLog reçoit la liste des échecs d'un run (artefact opérateur).
type ErrorLog interface {
	Append(ctx context.Context, report domain.BatchReport) error
}
