package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/logging"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(addr string, allowedOrigins []string, services *Services) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(newRouter(allowedOrigins, services), &http2.Server{}),
	}
}

func newRouter(allowedOrigins []string, services *Services) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging.RequestLogger("draft-api"))

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{draftrpc.ErrorKindHeader},
	})
	r.Use(c.Handler)

	registerServices(r, services)
	r.Mount("/cron", services.Cron.Routes())
	setupHealthCheck(r)
	return r
}

func registerServices(r chi.Router, services *Services) {
	// Register draft service
	draftPath, draftHandler := draftrpc.NewDraftServiceHandler(services.Draft)
	r.Mount(draftPath, draftHandler)

	// Register draft pick service
	pickPath, pickHandler := draftrpc.NewDraftPickServiceHandler(services.Picks)
	r.Mount(pickPath, pickHandler)
}

func setupHealthCheck(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
