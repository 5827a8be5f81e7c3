package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

// Authenticator est la partie de CredentialSession utilisée par le pipeline.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) error
	Reauthenticate(ctx context.Context) error
}

type FetchResult struct {
	Status domain.FetchStatus
	World  domain.World
	Err    *CodedError
	// Network: au moins un appel provider a eu lieu (pilote le délai du runner).
	Network bool
	// Thumbnail est vide si aucune miniature n'était référencée.
	Thumbnail domain.AssetOutcome
}

type PipelineConfig struct {
	Policy domain.StalenessPolicy
	// Retry nil = DefaultRetryPolicy. MaxRetries à 0 désactive la ré-authentification sur 401.
	Retry *RetryPolicy
	Now   func() time.Time
}

type Pipeline struct {
	logger  zerolog.Logger
	repo    ports.WorldRepository
	session Authenticator
	api     ports.WorldAPI
	assets  ports.AssetCache
	policy  domain.StalenessPolicy
	retry   RetryPolicy
	now     func() time.Time
}

// NewPipeline; assets peut être nil (pas de miniatures).
func NewPipeline(logger zerolog.Logger, repo ports.WorldRepository, session Authenticator, api ports.WorldAPI, assets ports.AssetCache, cfg PipelineConfig) *Pipeline {
	if cfg.Policy == (domain.StalenessPolicy{}) {
		cfg.Policy = domain.DefaultStalenessPolicy()
	}
	retry := DefaultRetryPolicy()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		logger:  logger.With().Str("component", "pipeline").Logger(),
		repo:    repo,
		session: session,
		api:     api,
		assets:  assets,
		policy:  cfg.Policy,
		retry:   retry,
		now:     cfg.Now,
	}
}

func (p *Pipeline) Fetch(ctx context.Context, sourceURL string) FetchResult {
	sourceURL = strings.TrimSpace(sourceURL)
	id, err := ParseWorldID(sourceURL)
	if err != nil {
		return failed(toCoded(err), false)
	}
	log := p.logger.With().Str("world", id).Logger()

	snap, err := p.repo.Get(ctx, id)
	switch {
	case err == nil:
		if p.policy.DecideWorld(snap, p.now()) == domain.Fresh {
			log.Debug().Time("scrapedAt", snap.ScrapedAt).Msg("snapshot fresh")
			return FetchResult{Status: domain.FetchCached, World: snap}
		}
	case errors.Is(err, ports.ErrNotFound):
	default:
		return failed(codedErr(CodeStorageError, "load snapshot", err), false)
	}

	if err := p.session.EnsureAuthenticated(ctx); err != nil {
		return failed(codedErr(CodeAuthError, "authenticate", err), true)
	}

	var raw []byte
	reauthed := false
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		raw, ferr = p.api.GetWorld(ctx, id)
		return ferr
	}, func(ctx context.Context, err error) (bool, error) {
		if !errors.Is(err, ports.ErrUnauthorized) || reauthed {
			return false, nil
		}
		reauthed = true
		log.Warn().Msg("session rejected by provider, re-authenticating")
		if rerr := p.session.Reauthenticate(ctx); rerr != nil {
			return false, codedErr(CodeAuthError, "re-authenticate", rerr)
		}
		return true, nil
	})
	if err != nil {
		return failed(toCoded(err), true)
	}

	world, err := NormalizeWorld(raw, id, sourceURL, p.now())
	if err != nil {
		return failed(toCoded(err), true)
	}

	res := FetchResult{Network: true}
	if src := world.ThumbnailSource(); src != "" && p.assets != nil {
		outcome, terr := p.assets.Download(ctx, src, id)
		res.Thumbnail = outcome
		if outcome == domain.AssetFailed {
			log.Warn().Err(terr).Msg("thumbnail download failed")
		} else {
			world.ThumbnailKey = id
		}
	}

	if err := p.repo.Upsert(ctx, world); err != nil {
		res.Status = domain.FetchFailure
		res.Err = codedErr(CodeStorageError, "upsert world", err)
		return res
	}
	res.Status = domain.FetchSuccess
	res.World = world
	return res
}

func failed(err *CodedError, network bool) FetchResult {
	return FetchResult{Status: domain.FetchFailure, Err: err, Network: network}
}

// toCoded classe une erreur provider ou transport dans un code stable.
func toCoded(err error) *CodedError {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	if errors.Is(err, ports.ErrUnauthorized) {
		return codedErr(CodeAuthError, "provider rejected session", err)
	}
	var se *ports.StatusError
	if errors.As(err, &se) {
		return &CodedError{Code: CodeProviderError, Status: se.Code, Message: "fetch world", Err: err}
	}
	return codedErr(CodeProviderError, "fetch world", err)
}
