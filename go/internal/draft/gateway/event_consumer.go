package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Invalidator forgets cached state for a draft.
type Invalidator interface {
	Invalidate(draftID uuid.UUID)
}

// EventConsumer consumes events from JetStream and broadcasts to WebSocket
// clients. Every gateway instance reads the whole stream with its own ordered
// consumer, since each holds a different set of sockets.
type EventConsumer struct {
	connectionManager *ConnectionManager
	invalidator       Invalidator
	js                jetstream.JetStream
	stream            string
	subjectPrefix     string
	cc                jetstream.ConsumeContext
}

// NewEventConsumer creates a new JetStream event consumer. invalidator may be nil.
func NewEventConsumer(cm *ConnectionManager, invalidator Invalidator, js jetstream.JetStream, stream, subjectPrefix string) *EventConsumer {
	return &EventConsumer{
		connectionManager: cm,
		invalidator:       invalidator,
		js:                js,
		stream:            stream,
		subjectPrefix:     subjectPrefix,
	}
}

// Start begins consuming new events from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	cons, err := ec.js.OrderedConsumer(ctx, ec.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ec.subjectPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := ec.HandleMessage(msg.Data()); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	ec.cc = cc

	log.Info().
		Str("stream", ec.stream).
		Str("subjects", ec.subjectPrefix+".>").
		Msg("started JetStream event consumer")
	return nil
}

// HandleMessage decodes one envelope, drops any cached snapshot for its draft
// and broadcasts it.
func (ec *EventConsumer) HandleMessage(data []byte) error {
	var envelope outbox.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	event, draftID, err := FromEnvelope(envelope)
	if err != nil {
		return fmt.Errorf("convert to WebSocket event: %w", err)
	}

	if ec.invalidator != nil {
		ec.invalidator.Invalidate(draftID)
	}
	ec.connectionManager.BroadcastToDraft(draftID, event)

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("draft_id", envelope.DraftID).
		Str("event_type", envelope.EventType).
		Msg("event broadcasted to WebSocket clients")
	return nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() {
	log.Info().Msg("stopping event consumer")
	if ec.cc != nil {
		ec.cc.Stop()
	}
}
