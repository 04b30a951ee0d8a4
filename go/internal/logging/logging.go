// Package logging configures the global zerolog logger and the slog logger
// used for HTTP access logs.
package logging

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var output io.Writer = os.Stdout

// Init sets the global level, writer and sampling. service is attached to
// every line.
func Init(cfg config.LogConfig, service string) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	output = w

	logger := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
}

// ParseLevel falls back to info for unknown levels.
func ParseLevel(v string) zerolog.Level {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(v)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Writer is the destination Init chose.
func Writer() io.Writer {
	return output
}

// Slog returns a JSON slog logger on the same writer.
func Slog(service string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(Writer(), &slog.HandlerOptions{})).With(slog.String("service", service))
}

// RequestLogger logs one line per request with status and duration.
func RequestLogger(service string) func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		Slog(service),
		&httplog.Options{
			Level:              slog.LevelInfo,
			Schema:             httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogRequestBody:     func(*http.Request) bool { return false },
			LogResponseBody:    func(*http.Request) bool { return false },
			LogRequestHeaders:  []string{"Idempotency-Key"},
			LogResponseHeaders: []string{},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				route := req.URL.Path
				if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("route", route),
				}
			},
		},
	)
}
