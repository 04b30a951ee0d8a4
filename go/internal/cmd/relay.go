package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/outbox"
	"github.com/kpm34/cfbdraft/go/internal/logging"
)

// startRelay publishes the outbox from this process until ctx is done.
func startRelay(ctx context.Context, src outbox.Source, cfg config.ServerConfig) (*outbox.Relay, error) {
	relay, err := outbox.NewRelay(ctx, src, cfg.Relay, cfg.NATS, logging.Slog("draft-api"), clockwork.NewRealClock())
	if err != nil {
		return nil, err
	}
	if err := relay.Worker.Start(ctx); err != nil {
		relay.Close()
		return nil, err
	}
	return relay, nil
}
