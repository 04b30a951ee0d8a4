// Package outbox relays events committed alongside draft state to the
// message bus. Rows are written by the store in the same write as the state
// change; this package only reads unsent rows, publishes them and marks them
// sent. Delivery is at least once and the bus dedupes on the event id.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Source is where unsent events are read from and marked sent.
// Every store backend implements it.
type Source interface {
	FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PendingCounter is implemented by sources that can count unsent rows cheaply.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// EventPublisher delivers one event to the bus.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// Envelope is the message body on the bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DraftID   string          `json:"draftId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an outbox row. The timestamp is the commit time.
func NewEnvelope(event models.OutboxEvent) Envelope {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		DraftID:   event.DraftID.String(),
		Timestamp: event.CreatedAt.UTC(),
		Payload:   payload,
	}
}

// Subject is prefix.<draft_id>.<event_type>.
func Subject(prefix string, draftID uuid.UUID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, draftID, eventType)
}
