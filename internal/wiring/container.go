// Package wiring assemble les adapters et services à partir de la configuration.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/assetfs"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/errorlog"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/postgres"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/sessionfile"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/config"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

// Container regroupe les dépendances d'un process (CLI ou serveur).
type Container struct {
	Config config.Config
	Logger zerolog.Logger

	Worlds   ports.WorldRepository
	Runs     ports.RunRepository
	Sessions ports.SessionStore

	Client   *app.VRChatClient
	Session  *app.CredentialSession
	Assets   *assetfs.Cache
	ErrorLog *errorlog.File
	Bus      *memorybus.Bus

	Pipeline   *app.Pipeline
	Runner     *app.BatchRunner
	Planner    *app.RefreshPlanner
	RunService *app.RunService

	closers []func()
}

// NewLogger construit le logger racine (json par défaut, console pour un terminal).
func NewLogger(cfg config.Config, name string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", name).Logger()
}

// New ouvre le stockage et branche les services. resolver peut être nil.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, resolver app.ChallengeResolver) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Container{Config: cfg, Logger: logger}

	var sqlDB *sqlite.DB
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			c.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		c.Worlds = postgres.NewWorldsRepository(pool, cfg.Store.Timeout)
		c.Runs = postgres.NewRunsRepository(pool, cfg.Store.Timeout)
	default:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB = db
		c.closers = append(c.closers, func() { _ = db.Close() })
		c.Worlds = sqlite.NewWorldsRepository(db.SQL)
		c.Runs = sqlite.NewRunsRepository(db.SQL)
	}

	switch cfg.Session.Backend {
	case config.SessionBackendFile:
		c.Sessions = sessionfile.New(cfg.Session.File)
	default:
		if sqlDB == nil {
			c.Close()
			return nil, errors.New("sqlite session backend needs the sqlite store")
		}
		c.Sessions = sqlite.NewSessionRepository(sqlDB.SQL)
	}

	opts := app.DefaultVRChatOptions()
	opts.Endpoint = cfg.Provider.Endpoint
	if cfg.Provider.UserAgent != "" {
		opts.UserAgent = cfg.Provider.UserAgent
	} else {
		opts.UserAgent = "vrc-world-sync/" + buildinfo.Current().Version
	}
	opts.Timeout = cfg.Provider.Timeout
	opts.MinInterval = cfg.Provider.MinInterval
	client, err := app.NewVRChatClient(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Client = client

	c.Session = app.NewCredentialSession(logger, client, c.Sessions, app.SessionConfig{
		Credentials: app.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password},
		Resolver:    resolver,
		TTL:         cfg.Session.TTL,
	})

	policy := Policy(cfg)
	if cfg.Thumbnails != "" {
		c.Assets = assetfs.New(cfg.Thumbnails, client)
	}
	pcfg := app.PipelineConfig{
		Policy: policy,
		Retry:  &app.RetryPolicy{MaxRetries: cfg.Provider.MaxRetries, Delay: cfg.Provider.RetryDelay},
	}
	// assets nil: l'interface doit rester nil pour désactiver les miniatures.
	var assets ports.AssetCache
	if c.Assets != nil {
		assets = c.Assets
	}
	c.Pipeline = app.NewPipeline(logger, c.Worlds, c.Session, client, assets, pcfg)

	c.Bus = memorybus.New()
	c.closers = append(c.closers, c.Bus.Close)

	var errLog ports.ErrorLog
	if cfg.ErrorLog != "" {
		c.ErrorLog = errorlog.New(cfg.ErrorLog)
		errLog = c.ErrorLog
	}
	c.Runner = app.NewBatchRunner(logger, c.Pipeline, errLog, c.Bus)
	c.Planner = app.NewRefreshPlanner(c.Worlds, policy)
	c.RunService = app.NewRunService(logger, c.Runs, c.Runner, c.Planner, cfg.Batch.Delay)

	return c, nil
}

// Policy traduit la section staleness de la configuration.
func Policy(cfg config.Config) domain.StalenessPolicy {
	return domain.StalenessPolicy{
		Floor:   cfg.Staleness.Floor,
		Ceiling: cfg.Staleness.Ceiling,
		Factor:  cfg.Staleness.Factor,
	}
}

// Resolver choisit la source du code 2FA: VRCHAT_2FA_CODE puis, si interactive, le terminal.
func Resolver(cfg config.Config, interactive bool) app.ChallengeResolver {
	chain := app.ChainResolver{}
	if cfg.Credentials.ChallengeCode != "" {
		chain = append(chain, app.StaticChallenge(cfg.Credentials.ChallengeCode))
	}
	if interactive {
		chain = append(chain, app.NewPromptChallenge())
	}
	return chain
}

// Close libère les ressources dans l'ordre inverse de leur ouverture.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
