package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/autopick"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/idgen"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// autopick chooses for the on-clock participant and submits through the
// pick processor against the version it observed.
func (o *Orchestrator) autopick(ctx context.Context, d models.Draft, st models.DraftState, onClock models.Participant, now time.Time) *Action {
	var (
		pool  []models.Player
		picks []models.DraftPick
	)
	err := o.retry(ctx, "load pool", func(ctx context.Context) error {
		var err error
		if pool, err = o.store.ListPool(ctx, d.ID); err != nil {
			return err
		}
		picks, err = o.store.ListPicks(ctx, d.ID)
		return err
	})
	if err != nil {
		return failed(d.ID, err)
	}

	taken := make(map[uuid.UUID]bool, len(picks))
	for _, p := range picks {
		taken[p.PlayerID] = true
	}

	choice, err := o.selector.Select(autopick.Input{
		Pool:            pool,
		Taken:           taken,
		FilledPositions: onClock.FilledPositions,
		PositionLimits:  d.Config.PositionLimits,
	})
	if errors.Is(err, drafterr.ErrPoolExhausted) {
		return o.halt(ctx, d.ID, st, now, err)
	}
	if err != nil {
		return failed(d.ID, err)
	}

	participantID := st.OnClockParticipantID
	res, err := o.submit(ctx, pick.SubmitRequest{
		DraftID:          d.ID,
		IdempotencyToken: idgen.AutopickToken(o.clock.Now()),
		ParticipantID:    participantID,
		PlayerID:         choice.ID,
		ExpectedVersion:  st.Version,
		Autopick:         true,
		// Now stays zero so the processor stamps the actual commit time.
	})
	if err != nil {
		if lostRace(err) {
			fresh, lerr := o.loadState(ctx, d.ID)
			if lerr == nil && (fresh.Version != st.Version || fresh.Status != st.Status) {
				log.Info().
					Str("draft_id", d.ID.String()).
					Int("overall_pick", st.CurrentPick).
					Int64("version", fresh.Version).
					Msg("draft advanced elsewhere, skipping autopick")
				return &Action{DraftID: d.ID, Kind: ActionAdvancedElsewhere, OverallPick: st.CurrentPick}
			}
		}
		log.Error().
			Err(err).
			Str("draft_id", d.ID.String()).
			Int("overall_pick", st.CurrentPick).
			Msg("auto-pick submit failed")
		return failed(d.ID, err)
	}

	log.Info().
		Str("draft_id", d.ID.String()).
		Int("overall_pick", res.Pick.OverallPick).
		Str("participant_id", participantID.String()).
		Str("player_id", choice.ID.String()).
		Str("position", choice.Position).
		Msg("auto-pick made")

	playerID := choice.ID
	return &Action{
		DraftID:       d.ID,
		Kind:          ActionAutopicked,
		OverallPick:   res.Pick.OverallPick,
		ParticipantID: &participantID,
		PlayerID:      &playerID,
	}
}

// halt pauses a draft that has no eligible player left for the current slot.
// The slot is never skipped.
func (o *Orchestrator) halt(ctx context.Context, draftID uuid.UUID, st models.DraftState, now time.Time, cause error) *Action {
	log.Error().
		Err(cause).
		Str("draft_id", draftID.String()).
		Int("overall_pick", st.CurrentPick).
		Msg("player pool exhausted, halting draft")

	_, err := o.pause(ctx, draftID, now, "pool exhausted", func(cur models.DraftState) (models.OutboxEvent, error) {
		return events.New(draftID, events.TypeDraftHalted, events.DraftHaltedPayload{
			DraftID:     draftID.String(),
			OverallPick: cur.CurrentPick,
			Reason:      cause.Error(),
			HaltedAt:    now,
		}, now)
	})
	if err != nil {
		return failed(draftID, fmt.Errorf("halt draft: %w", err))
	}
	return &Action{DraftID: draftID, Kind: ActionHalted, OverallPick: st.CurrentPick, Error: cause.Error()}
}
