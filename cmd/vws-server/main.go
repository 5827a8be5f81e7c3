package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/config"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/wiring"
)

func main() {
	config.LoadEnvFiles()
	configPath := flag.String("config", envOr("VWS_CONFIG", "vws.yaml"), "Fichier de configuration YAML (optionnel)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:8080)")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: data/worlds.db)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Store.SQLitePath = *dbPath
	}

	logger := wiring.NewLogger(cfg, "vws-server", os.Stdout)
	log.Logger = logger
	logger.Info().Interface("build", buildinfo.Current()).Interface("config", cfg.Redacted()).Msg("starting")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pas de prompt côté serveur: le code 2FA vient de VRCHAT_2FA_CODE ou d'un `vws login` préalable.
	ctr, err := wiring.New(shutdownCtx, cfg, logger, wiring.Resolver(cfg, false))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	defer ctr.Close()

	if n, err := ctr.Runs.MarkInterrupted(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to close interrupted runs")
	} else if n > 0 {
		logger.Warn().Int64("runs", n).Msg("runs interrupted by a previous shutdown marked canceled")
	}

	var thumbs httpapi.ThumbnailOpener
	if ctr.Assets != nil {
		thumbs = ctr.Assets
	}
	srv := httpapi.NewServer(logger, shutdownCtx, ctr.Worlds, thumbs, ctr.RunService, ctr.Bus, wiring.Policy(cfg))
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	// Les flux SSE se terminent avec le bus; le run actif s'arrête avant l'item suivant.
	ctr.Bus.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	ctr.RunService.Wait()
	logger.Info().Msg("bye")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
