package app

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type RefreshPlan struct {
	Stored int      `json:"stored"`
	Fresh  int      `json:"fresh"`
	URLs   []string `json:"urls"`
}

// RefreshPlanner sélectionne les worlds stockées que la politique déclare périmées.
type RefreshPlanner struct {
	repo   ports.WorldRepository
	policy domain.StalenessPolicy
	now    func() time.Time
}

func NewRefreshPlanner(repo ports.WorldRepository, policy domain.StalenessPolicy) *RefreshPlanner {
	if policy == (domain.StalenessPolicy{}) {
		policy = domain.DefaultStalenessPolicy()
	}
	return &RefreshPlanner{repo: repo, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

func (p *RefreshPlanner) Plan(ctx context.Context) (RefreshPlan, error) {
	worlds, err := p.repo.List(ctx, 0)
	if err != nil {
		return RefreshPlan{}, err
	}
	now := p.now()
	plan := RefreshPlan{Stored: len(worlds), URLs: []string{}}
	for _, w := range worlds {
		if p.policy.DecideWorld(w, now) == domain.Fresh {
			plan.Fresh++
			continue
		}
		u := w.SourceURL
		if u == "" {
			u = CanonicalWorldURL(w.ID)
		}
		plan.URLs = append(plan.URLs, u)
	}
	return plan, nil
}
