package domain

import "time"

type Freshness string

const (
	Fresh        Freshness = "fresh"
	NeedsRefresh Freshness = "needs_refresh"
)

// StalenessPolicy décide si un snapshot doit être re-téléchargé.
//
//   - jamais plus d'une fois par Floor;
//   - toujours au-delà de Ceiling;
//   - entre les deux: rafraîchir si elapsed*Factor > (scrapedAt - sourceUpdatedAt).
//
// Decide est une fonction pure de ses arguments.
type StalenessPolicy struct {
	Floor   time.Duration
	Ceiling time.Duration
	Factor  int64
}

func DefaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{
		Floor:   24 * time.Hour,
		Ceiling: 30 * 24 * time.Hour,
		Factor:  10,
	}
}

// Decide applique la politique. sourceUpdatedAt à zéro = cadence inconnue.
func (p StalenessPolicy) Decide(scrapedAt, sourceUpdatedAt, now time.Time) Freshness {
	elapsed := now.Sub(scrapedAt)
	if elapsed < p.Floor {
		return Fresh
	}
	// Le plafond passe avant la multiplication: elapsed peut saturer si scrapedAt est zéro.
	if elapsed >= p.Ceiling {
		return NeedsRefresh
	}
	if sourceUpdatedAt.IsZero() {
		return NeedsRefresh
	}
	interval := scrapedAt.Sub(sourceUpdatedAt)
	if interval <= 0 {
		return NeedsRefresh
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	if elapsed*time.Duration(factor) > interval {
		return NeedsRefresh
	}
	return Fresh
}

// DecideWorld est un raccourci sur un snapshot.
func (p StalenessPolicy) DecideWorld(w World, now time.Time) Freshness {
	return p.Decide(w.ScrapedAt, w.SourceUpdatedAt, now)
}
