package outbox

import (
	"context"
	"log/slog"

	"github.com/kpm34/cfbdraft/go/internal/models"
)

// LogPublisher writes events to a logger instead of a bus. Used when no NATS
// URL is configured.
type LogPublisher struct {
	logger *slog.Logger
	prefix string
}

func NewLogPublisher(logger *slog.Logger, subjectPrefix string) *LogPublisher {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &LogPublisher{logger: logger, prefix: subjectPrefix}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	p.logger.InfoContext(ctx, "publishing event",
		slog.String("subject", Subject(p.prefix, event.DraftID, event.EventType)),
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.String("draft_id", event.DraftID.String()))
	return nil
}
