package httpapi

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

// RunController est la surface de app.RunService utilisée par l'API.
type RunController interface {
	Start(ctx, base context.Context, req app.StartRunRequest) (app.RunDTO, error)
	Get(ctx context.Context, id string) (app.RunDTO, error)
	List(ctx context.Context, limit int) ([]app.RunDTO, error)
	Cancel(id string) error
}

// ThumbnailOpener lit une miniature du cache local (ports.ErrNotFound si absente).
type ThumbnailOpener interface {
	Open(key string) (*os.File, error)
}

type Server struct {
	logger zerolog.Logger
	// base borne la durée de vie des runs lancés via l'API (arrêt du serveur).
	base       context.Context
	worlds     ports.WorldRepository
	thumbnails ThumbnailOpener
	runs       RunController
	bus        ports.EventBus
	policy     domain.StalenessPolicy
}

func NewServer(logger zerolog.Logger, base context.Context, worlds ports.WorldRepository, thumbnails ThumbnailOpener, runs RunController, bus ports.EventBus, policy domain.StalenessPolicy) *Server {
	if base == nil {
		base = context.Background()
	}
	if policy == (domain.StalenessPolicy{}) {
		policy = domain.DefaultStalenessPolicy()
	}
	return &Server{logger: logger, base: base, worlds: worlds, thumbnails: thumbnails, runs: runs, bus: bus, policy: policy}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE échappe au timeout des requêtes.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.worlds != nil {
				NewWorldsHandler(s.worlds, s.thumbnails, s.policy).Routes(r)
			}
			if s.runs != nil {
				NewRunsHandler(s.base, s.runs).Routes(r)
			}
		})
	})

	return r
}
