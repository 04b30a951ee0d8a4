package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Wake asks the scheduler loop to sweep now instead of at the next tick.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// RunScheduler sweeps on every tick until ctx is done: first due drafts are
// started, then expired picks are autopicked. A Wake triggers an early sweep.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Dur("interval", o.cfg.TickInterval).
		Int("parallelism", o.cfg.Parallelism).
		Msg("scheduler started")

	ticker := o.clock.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		o.sweep(ctx)

		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("scheduler shutting down")
			return nil
		case <-ticker.Chan():
		case <-o.wakeCh:
			log.Debug().Str("instance", o.instanceID).Msg("woken up early")
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context) {
	now := o.clock.Now()

	started, err := o.StartDueDrafts(ctx, now)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("error starting due drafts")
	}
	picked, err := o.SweepExpiredPicks(ctx, now)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("error sweeping expired picks")
	}

	if n := advanced(started) + advanced(picked); n > 0 {
		log.Debug().
			Int("advanced", n).
			Str("instance", o.instanceID).
			Msg("sweep finished")
		// A new clock may already be due, e.g. a bot now on the clock.
		o.Wake()
	}
}

// advanced counts actions that moved a draft forward.
func advanced(actions []Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind == ActionStarted || a.Kind == ActionAutopicked {
			n++
		}
	}
	return n
}
