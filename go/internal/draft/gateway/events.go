package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
)

// DraftEvent is the frame written to WebSocket clients.
type DraftEvent struct {
	ID        string          `json:"id"`        // Event UUID, empty for snapshots
	DraftID   string          `json:"draft_id"`  // Draft UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Commit time of the event
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of draft event
type EventType string

const (
	EventTypePickMade       EventType = events.TypePickMade
	EventTypePickStarted    EventType = events.TypePickStarted
	EventTypeDraftStarted   EventType = events.TypeDraftStarted
	EventTypeDraftPaused    EventType = events.TypeDraftPaused
	EventTypeDraftResumed   EventType = events.TypeDraftResumed
	EventTypeDraftCompleted EventType = events.TypeDraftCompleted
	EventTypeDraftCanceled  EventType = events.TypeDraftCanceled
	EventTypeDraftHalted    EventType = events.TypeDraftHalted

	// EventTypeSnapshot is the first frame on every connection.
	EventTypeSnapshot EventType = "Snapshot"
)

var knownEventTypes = map[EventType]bool{
	EventTypePickMade:       true,
	EventTypePickStarted:    true,
	EventTypeDraftStarted:   true,
	EventTypeDraftPaused:    true,
	EventTypeDraftResumed:   true,
	EventTypeDraftCompleted: true,
	EventTypeDraftCanceled:  true,
	EventTypeDraftHalted:    true,
}

// FromEnvelope converts a bus message into a client frame.
func FromEnvelope(env outbox.Envelope) (*DraftEvent, uuid.UUID, error) {
	draftID, err := uuid.Parse(env.DraftID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("parse draft ID: %w", err)
	}
	t := EventType(env.EventType)
	if !knownEventTypes[t] {
		return nil, uuid.Nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
	return &DraftEvent{
		ID:        env.EventID,
		DraftID:   env.DraftID,
		Type:      t,
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	}, draftID, nil
}

// snapshotEvent wraps a snapshot in a frame.
func snapshotEvent(snap *Snapshot, at time.Time) (*DraftEvent, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return &DraftEvent{
		DraftID:   snap.DraftID,
		Type:      EventTypeSnapshot,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *DraftEvent) (any, error) {
	var payload any
	switch event.Type {
	case EventTypePickMade:
		payload = &events.PickMadePayload{}
	case EventTypePickStarted:
		payload = &events.PickStartedPayload{}
	case EventTypeDraftStarted:
		payload = &events.DraftStartedPayload{}
	case EventTypeDraftPaused:
		payload = &events.DraftPausedPayload{}
	case EventTypeDraftResumed:
		payload = &events.DraftResumedPayload{}
	case EventTypeDraftCompleted:
		payload = &events.DraftCompletedPayload{}
	case EventTypeDraftCanceled:
		payload = &events.DraftCanceledPayload{}
	case EventTypeDraftHalted:
		payload = &events.DraftHaltedPayload{}
	case EventTypeSnapshot:
		payload = &Snapshot{}
	default:
		return nil, nil // Unknown event type
	}
	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return payload, nil
}
