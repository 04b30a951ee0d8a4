package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/backend"
	"github.com/kpm34/cfbdraft/go/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	// load .env
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg, err := config.Load[config.OutboxConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Log, "draft-outbox")

	// Only Postgres can be shared with the API process. The other backends
	// relay in-process with RUN_RELAY.
	if cfg.Store.Backend != backend.Postgres {
		log.Fatal().
			Str("backend", cfg.Store.Backend).
			Msg("the standalone relay needs the postgres store, set RUN_RELAY on the API instead")
	}

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Store.DB.DSN()
	repo, err := outbox.OpenRepository(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open outbox repository")
	}
	defer repo.Close()
	log.Info().
		Str("host", cfg.Store.DB.Host).
		Int("port", cfg.Store.DB.Port).
		Str("database", cfg.Store.DB.Database).
		Msg("connected to database")

	relay, err := outbox.NewRelay(ctx, repo, cfg.Relay, cfg.NATS, logging.Slog("draft-outbox"), clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("create relay")
	}
	defer relay.Close()

	// The poll loop keeps the relay alive if notifications stop arriving.
	if err := relay.Worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start outbox worker")
	}

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.NotifyChannel = cfg.NotifyChannel
	ltCfg.FallbackInterval = cfg.FallbackInterval
	listener, err := outbox.NewListener(relay.Worker, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	health := relay.HealthChecker(repo, cfg.StuckThreshold)
	r := chi.NewRouter()
	r.Use(logging.RequestLogger("draft-outbox"))
	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/metrics", outbox.NewPrometheusExporter(health, relay.Metrics))
	server := &http.Server{Addr: cfg.HealthAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// run listener
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting realtime listener")
		errCh <- listener.Start(ctx)
	}()

	// wait for shutdown or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
	log.Info().Msg("graceful shutdown complete")
}
