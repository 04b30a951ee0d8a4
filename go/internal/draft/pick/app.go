package pick

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/clock"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// PickStore defines what the pick app layer needs from the draft store
type PickStore interface {
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error)
	GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error)
	GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error)
	GetPickByToken(ctx context.Context, draftID uuid.UUID, token string) (*models.DraftPick, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error)
	CommitPick(ctx context.Context, p store.CommitParams) error
}

// App is the pick processor: the only path by which a pick is committed.
type App struct {
	store        PickStore
	schedules    *order.Cache
	clock        clockwork.Clock
	storeTimeout time.Duration
}

// NewApp creates a new pick App
func NewApp(st PickStore, schedules *order.Cache, clk clockwork.Clock, storeTimeout time.Duration) *App {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &App{
		store:        st,
		schedules:    schedules,
		clock:        clk,
		storeTimeout: storeTimeout,
	}
}

// Submit validates and commits one pick. Checks run in a fixed order and the
// first failure wins: draft active, token replay, turn, availability, version.
// A replayed token returns the original pick and never commits twice.
func (a *App) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	if strings.TrimSpace(req.IdempotencyToken) == "" {
		return nil, fmt.Errorf("%w: idempotency token is required", drafterr.ErrInvalidPick)
	}

	var (
		draft *models.Draft
		state *models.DraftState
	)
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		draft, err = a.store.GetDraft(ctx, req.DraftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	if draft.Status != models.DraftStatusActive {
		return nil, fmt.Errorf("%w: status is %s", drafterr.ErrDraftNotActive, draft.Status)
	}

	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		state, err = a.store.GetState(ctx, req.DraftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft state: %w", err)
	}
	if state.Status != models.DraftStatusActive {
		return nil, fmt.Errorf("%w: status is %s", drafterr.ErrDraftNotActive, state.Status)
	}

	if replay, err := a.replay(ctx, req.DraftID, req.IdempotencyToken); err != nil || replay != nil {
		return replay, err
	}

	if state.OnClockParticipantID != req.ParticipantID {
		return nil, fmt.Errorf("%w: pick %d belongs to %s", drafterr.ErrOutOfTurn, state.CurrentPick, state.OnClockParticipantID)
	}

	player, err := a.availablePlayer(ctx, req.DraftID, req.PlayerID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedVersion != state.Version {
		return nil, fmt.Errorf("%w: expected version %d, current %d", drafterr.ErrStaleState, req.ExpectedVersion, state.Version)
	}

	slots, err := a.schedule(ctx, req.DraftID)
	if err != nil {
		return nil, err
	}
	slot, ok := order.SlotFor(slots, state.CurrentPick)
	if !ok {
		return nil, fmt.Errorf("%w: no slot for pick %d", drafterr.ErrDraftNotActive, state.CurrentPick)
	}

	now := req.Now
	if now.IsZero() {
		now = a.clock.Now()
	}
	now = now.UTC()

	pk := models.DraftPick{
		ID:               uuid.New(),
		DraftID:          req.DraftID,
		OverallPick:      slot.OverallPick,
		Round:            slot.Round,
		PickInRound:      slot.PickInRound,
		ParticipantID:    slot.ParticipantID,
		PlayerID:         player.ID,
		PickedAt:         now,
		Autopick:         req.Autopick,
		IdempotencyToken: req.IdempotencyToken,
	}
	next, evs, err := a.advance(draft, *state, slots, pk, player, now)
	if err != nil {
		return nil, err
	}

	err = a.call(ctx, func(ctx context.Context) error {
		return a.store.CommitPick(ctx, store.CommitParams{
			Pick:            pk,
			Position:        player.Position,
			ExpectedVersion: state.Version,
			Next:            next,
			Events:          evs,
		})
	})
	if errors.Is(err, store.ErrDuplicateToken) {
		// Lost a race against a retry of the same request.
		replay, rerr := a.replay(ctx, req.DraftID, req.IdempotencyToken)
		if rerr != nil {
			return nil, rerr
		}
		if replay != nil {
			return replay, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to commit pick %d: %w", pk.OverallPick, err)
	}

	log.Info().
		Str("draft_id", req.DraftID.String()).
		Int("overall_pick", pk.OverallPick).
		Str("participant_id", pk.ParticipantID.String()).
		Str("player_id", pk.PlayerID.String()).
		Bool("autopick", pk.Autopick).
		Int64("version", next.Version).
		Msg("pick committed")

	return &Result{Pick: pk, State: next}, nil
}

// advance builds the state after pk and the events that go with it.
func (a *App) advance(draft *models.Draft, cur models.DraftState, slots []models.PickSlot, pk models.DraftPick, player models.Player, now time.Time) (models.DraftState, []models.OutboxEvent, error) {
	next := cur
	next.Version = cur.Version + 1
	next.CurrentPick = cur.CurrentPick + 1
	next.UpdatedAt = now
	next.RemainingOnPause = 0

	made, err := events.New(draft.ID, events.TypePickMade, events.PickMadePayload{
		PickID:        pk.ID.String(),
		ParticipantID: pk.ParticipantID.String(),
		PlayerID:      player.ID.String(),
		PlayerName:    player.FullName,
		Position:      player.Position,
		Round:         pk.Round,
		PickInRound:   pk.PickInRound,
		OverallPick:   pk.OverallPick,
		Autopick:      pk.Autopick,
		MadeAt:        now,
	}, now)
	if err != nil {
		return next, nil, err
	}
	evs := []models.OutboxEvent{made}

	nextSlot, ok := order.SlotFor(slots, next.CurrentPick)
	if !ok {
		next.Status = models.DraftStatusComplete
		next.OnClockParticipantID = uuid.Nil
		next.PickStartedAt = now
		next.Deadline = time.Time{}

		var elapsed time.Duration
		if draft.StartedAt != nil {
			elapsed = now.Sub(*draft.StartedAt)
		}
		done, err := events.New(draft.ID, events.TypeDraftCompleted, events.DraftCompletedPayload{
			DraftID:     draft.ID.String(),
			CompletedAt: now,
			Duration:    elapsed.String(),
			TotalPicks:  len(slots),
		}, now)
		if err != nil {
			return next, nil, err
		}
		return next, append(evs, done), nil
	}

	next.CurrentRound = nextSlot.Round
	next.OnClockParticipantID = nextSlot.ParticipantID
	next.PickStartedAt = now
	next.Deadline = clock.DeadlineFor(now, draft.Config.PickDuration())

	started, err := events.PickStarted(draft.Config, next, nextSlot)
	if err != nil {
		return next, nil, err
	}
	return next, append(evs, started), nil
}

// replay returns the stored result for a token, or nil when the token is new.
func (a *App) replay(ctx context.Context, draftID uuid.UUID, token string) (*Result, error) {
	var existing *models.DraftPick
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = a.store.GetPickByToken(ctx, draftID, token)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency token: %w", err)
	}

	var state *models.DraftState
	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		state, err = a.store.GetState(ctx, draftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft state: %w", err)
	}

	log.Debug().
		Str("draft_id", draftID.String()).
		Str("token", token).
		Int("overall_pick", existing.OverallPick).
		Msg("replayed pick for known idempotency token")
	return &Result{Pick: *existing, State: *state, Replayed: true}, nil
}

// availablePlayer checks the player is in the pool and not yet picked.
func (a *App) availablePlayer(ctx context.Context, draftID, playerID uuid.UUID) (models.Player, error) {
	var (
		pool  []models.Player
		picks []models.DraftPick
	)
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		if pool, err = a.store.ListPool(ctx, draftID); err != nil {
			return err
		}
		picks, err = a.store.ListPicks(ctx, draftID)
		return err
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("failed to load player availability: %w", err)
	}

	for _, p := range picks {
		if p.PlayerID == playerID {
			return models.Player{}, fmt.Errorf("%w: player %s went at pick %d", drafterr.ErrPlayerAlreadyTaken, playerID, p.OverallPick)
		}
	}
	for _, p := range pool {
		if p.ID == playerID {
			return p, nil
		}
	}
	return models.Player{}, fmt.Errorf("%w: player %s is not in the pool", drafterr.ErrInvalidPick, playerID)
}

func (a *App) schedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error) {
	var slots []models.PickSlot
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		if a.schedules != nil {
			slots, err = a.schedules.Schedule(ctx, draftID)
		} else {
			slots, err = a.store.GetSchedule(ctx, draftID)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return slots, nil
}

// ListAvailablePlayers returns pool players not yet picked, best rank first.
func (a *App) ListAvailablePlayers(ctx context.Context, draftID uuid.UUID) ([]AvailablePlayer, error) {
	var (
		pool  []models.Player
		picks []models.DraftPick
	)
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		if pool, err = a.store.ListPool(ctx, draftID); err != nil {
			return err
		}
		picks, err = a.store.ListPicks(ctx, draftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list available players: %w", err)
	}

	taken := make(map[uuid.UUID]bool, len(picks))
	for _, p := range picks {
		taken[p.PlayerID] = true
	}
	out := make([]AvailablePlayer, 0, len(pool))
	for _, p := range pool {
		if !taken[p.ID] {
			out = append(out, AvailablePlayer{Player: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// ListPicks returns committed picks in order.
func (a *App) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	var picks []models.DraftPick
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		picks, err = a.store.ListPicks(ctx, draftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list picks: %w", err)
	}
	return picks, nil
}

func (a *App) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return store.Call(ctx, a.storeTimeout, fn)
}
