package orchestrator

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/rs/zerolog/log"
)

// CronSecretHeader carries the shared secret for the cron endpoints.
const CronSecretHeader = "X-Cron-Secret"

// Sweeper is the part of the orchestrator the cron endpoints drive.
type Sweeper interface {
	StartDueDrafts(ctx context.Context, now time.Time) ([]Action, error)
	SweepExpiredPicks(ctx context.Context, now time.Time) ([]Action, error)
}

// CronHandler exposes the sweeps for an external scheduler to call.
type CronHandler struct {
	sweeper Sweeper
	clock   clockwork.Clock
	secret  string
}

// NewCronHandler builds the handler. An empty secret leaves the routes open.
func NewCronHandler(sweeper Sweeper, clk clockwork.Clock, secret string) *CronHandler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &CronHandler{sweeper: sweeper, clock: clk, secret: secret}
}

type cronResponse struct {
	Now     time.Time `json:"now"`
	Count   int       `json:"count"`
	Actions []Action  `json:"actions"`
}

// Routes mounts POST /start-due-drafts and POST /sweep-expired-picks.
func (h *CronHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireSecret)
	r.Post("/start-due-drafts", h.run(h.sweeper.StartDueDrafts))
	r.Post("/sweep-expired-picks", h.run(h.sweeper.SweepExpiredPicks))
	return r
}

func (h *CronHandler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(CronSecretHeader)), []byte(h.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *CronHandler) run(fn func(ctx context.Context, now time.Time) ([]Action, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := h.clock.Now().UTC()
		actions, err := fn(r.Context(), now)
		if err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("cron sweep failed")
			status := http.StatusInternalServerError
			if drafterr.Retryable(err) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]any{
				"error": drafterr.Message(err),
				"kind":  drafterr.KindOf(err),
			})
			return
		}
		if actions == nil {
			actions = []Action{}
		}
		writeJSON(w, http.StatusOK, cronResponse{Now: now, Count: len(actions), Actions: actions})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
