package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/backend"
	"github.com/kpm34/cfbdraft/go/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log, "draft-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open draft store")
	}
	defer closeStore()

	services, err := setupServices(st, clockwork.NewRealClock(), orchestratorConfig(cfg), cfg.CronSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	if cfg.RunScheduler {
		go func() {
			if err := services.Orchestrator.RunScheduler(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}
	if cfg.RunRelay {
		relay, err := startRelay(ctx, st, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start outbox relay")
		}
		defer relay.Close()
	}
	if cfg.CronSecret == "" {
		log.Warn().Msg("CRON_SECRET is not set, cron routes are unauthenticated")
	}

	server := setupServer(cfg.HTTPAddr, cfg.AllowedOrigins, services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Backend).
			Bool("scheduler", cfg.RunScheduler).
			Bool("relay", cfg.RunRelay).
			Msg("draft api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
