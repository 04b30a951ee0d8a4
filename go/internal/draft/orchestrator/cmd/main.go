package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/autopick"
	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/backend"
	"github.com/kpm34/cfbdraft/go/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg, err := config.Load[config.OrchestratorConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log, "draft-orchestrator")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open draft store")
	}
	defer closeStore()

	clk := clockwork.NewRealClock()
	orchCfg := orchestrator.ConfigFrom(cfg.Store, cfg.Scheduler)
	schedules, err := order.NewCache(st, 1024)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create schedule cache")
	}
	pickApp := pick.NewApp(st, schedules, clk, orchCfg.StoreTimeout)
	orch := orchestrator.New(st, pickApp, autopick.NewSelector(nil), clk, orchCfg)

	log.Info().
		Str("store", cfg.Store.Backend).
		Int("parallelism", orchCfg.Parallelism).
		Dur("tick", orchCfg.TickInterval).
		Msg("starting draft orchestrator")

	// Start orchestrator scheduler in background
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := orch.RunScheduler(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator scheduler failed")
		}
	}()

	// Wake early when another process starts a clock
	if !cfg.NATS.Disabled {
		jsCfg := outbox.JetStreamConfigFrom(cfg.NATS)
		nc, js, err := outbox.Connect(jsCfg, "draft-orchestrator")
		if err != nil {
			log.Error().Err(err).Msg("NATS unavailable, relying on the tick alone")
		} else {
			defer nc.Close()
			if err := outbox.EnsureStream(ctx, js, jsCfg); err != nil {
				log.Fatal().Err(err).Msg("failed to ensure event stream")
			}
			consumer := orchestrator.NewWakeConsumer(js, jsCfg.StreamName, jsCfg.SubjectPrefix, orch)
			if err := consumer.Start(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to start wake consumer")
			}
			defer consumer.Stop()
		}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging.RequestLogger("draft-orchestrator"))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Mount("/cron", orchestrator.NewCronHandler(orch, clk, cfg.CronSecret).Routes())

	// Start HTTP server for health checks and cron triggers
	server := &http.Server{
		Addr:         cfg.HealthAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}

	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("scheduler did not stop in time")
	}

	log.Info().Msg("draft orchestrator shutdown complete")
}
