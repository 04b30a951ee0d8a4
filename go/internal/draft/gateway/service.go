// Package gateway pushes draft events to browsers over WebSockets. It holds
// no draft state of its own: snapshots come from the draft API and live
// events from the event stream.
package gateway

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service is the main draft gateway service that handles WebSocket connections and event broadcasting
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the draft gateway service
type Config struct {
	Connection    ConnectionConfig
	StreamName    string
	SubjectPrefix string
}

// NewService wires the gateway. A nil js runs without live events, which is
// only useful in tests and local development.
func NewService(cfg Config, provider StateProvider, js jetstream.JetStream, clk clockwork.Clock) *Service {
	cm := NewConnectionManager(cfg.Connection, clk)
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, provider),
	}
	if js != nil {
		inv, _ := provider.(Invalidator)
		s.eventConsumer = NewEventConsumer(cm, inv, js, cfg.StreamName, cfg.SubjectPrefix)
	}
	return s
}

// Start runs the gateway until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting draft gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		if err := s.eventConsumer.Start(ctx); err != nil {
			return err
		}
		defer s.eventConsumer.Stop()
	}

	<-ctx.Done()
	log.Info().Msg("draft gateway service shutting down")
	return nil
}

// Routes returns the WebSocket and state routes.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/drafts/{draftID}", s.wsHandler.HandleDraftConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)
	r.Get("/api/drafts/{draftID}/state", s.wsHandler.HandleGetDraftState)
	return r
}

// BroadcastEvent sends an event to every socket watching draftID.
func (s *Service) BroadcastEvent(draftID uuid.UUID, event *DraftEvent) {
	s.connectionManager.BroadcastToDraft(draftID, event)
}

// Stats reports active connections.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
