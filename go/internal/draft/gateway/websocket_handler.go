package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const snapshotTimeout = 5 * time.Second

// WebSocketHandler handles WebSocket upgrade requests for draft connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleDraftConnection serves GET /ws/drafts/{draftID}. The first frame is a
// snapshot; every event committed after the socket registered follows it.
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return
	}
	// Optional; lets a client filter for its own seat later.
	participantID := r.URL.Query().Get("participant_id")

	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	// Reject unknown drafts before upgrading.
	if _, err := h.stateProvider.Snapshot(ctx, draftID); err != nil {
		writeProviderError(w, draftID, err)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, participantID, draftID)
	if err != nil {
		log.Error().
			Err(err).
			Str("draft_id", draftID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// Fetched again after registering so nothing committed in between is lost.
	snap, err := h.stateProvider.Snapshot(ctx, draftID)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to load snapshot")
		h.connectionManager.Close(conn, "snapshot unavailable")
		return
	}
	first, err := snapshotEvent(snap, snap.ServerTime)
	if err == nil {
		err = h.connectionManager.Activate(conn, first)
	}
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to activate connection")
		h.connectionManager.Close(conn, "activation failed")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

// HandleGetDraftState serves GET /api/drafts/{draftID}/state.
func (h *WebSocketHandler) HandleGetDraftState(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return
	}
	snap, err := h.stateProvider.Snapshot(r.Context(), draftID)
	if err != nil {
		writeProviderError(w, draftID, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeProviderError(w http.ResponseWriter, draftID uuid.UUID, err error) {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		switch cerr.Code() {
		case connect.CodeNotFound:
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		case connect.CodeInvalidArgument:
			http.Error(w, "invalid draft id", http.StatusBadRequest)
			return
		}
	}
	log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to get draft state")
	http.Error(w, "failed to get draft state", http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
