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
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/draft/gateway"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
	"github.com/kpm34/cfbdraft/go/internal/logging"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg, err := config.Load[config.GatewayConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log, "draft-gateway")

	clk := clockwork.NewRealClock()
	httpClient := &http.Client{Timeout: 10 * time.Second}
	provider, err := gateway.NewRPCStateProvider(draftrpc.NewDraftServiceClient(httpClient, cfg.DraftAPIURL), clk, 512)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create state provider")
	}

	var js jetstream.JetStream
	jsCfg := outbox.JetStreamConfigFrom(cfg.NATS)
	if !cfg.NATS.Disabled {
		nc, stream, err := outbox.Connect(jsCfg, "draft-gateway")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()
		js = stream
	} else {
		log.Warn().Msg("NATS disabled, clients will only receive snapshots")
	}

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.PingInterval = cfg.PingInterval
	connCfg.AllowedOrigins = cfg.AllowedOrigins
	gatewayService := gateway.NewService(gateway.Config{
		Connection:    connCfg,
		StreamName:    jsCfg.StreamName,
		SubjectPrefix: jsCfg.SubjectPrefix,
	}, provider, js, clk)

	log.Info().
		Str("draft_api", cfg.DraftAPIURL).
		Str("nats_url", jsCfg.URL).
		Msg("starting draft gateway")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging.RequestLogger("draft-gateway"))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Mount("/", gatewayService.Routes())

	// WriteTimeout stays unset; it would cut long-lived sockets.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start gateway service (includes event consumer and connection manager)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
			stop()
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("draft gateway shutdown complete")
}
