package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftStore defines what the draft app layer needs from the draft store
type DraftStore interface {
	CreateDraft(ctx context.Context, draft models.Draft, participants []models.Participant, pool []models.Player) error
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error)
	GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error)
	GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error)
	ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error)
}

// App handles draft business logic
type App struct {
	store        DraftStore
	clock        clockwork.Clock
	storeTimeout time.Duration
}

// NewApp creates a new draft App
func NewApp(st DraftStore, clk clockwork.Clock, storeTimeout time.Duration) *App {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &App{store: st, clock: clk, storeTimeout: storeTimeout}
}

// CreateDraft validates and stores a scheduled draft
func (a *App) CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.Draft, error) {
	if err := validateCreateDraftRequest(req); err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	draftID := req.ID
	if draftID == uuid.Nil {
		draftID = uuid.New()
	}

	participants := make([]models.Participant, len(req.Participants))
	orderIDs := make([]uuid.UUID, len(req.Participants))
	for i, in := range req.Participants {
		id := in.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		participants[i] = models.Participant{
			ID:              id,
			DraftID:         draftID,
			DisplayName:     in.DisplayName,
			IsBot:           in.IsBot,
			FilledPositions: map[string]int{},
		}
		orderIDs[i] = id
	}

	cfg := models.DraftConfig{
		Rounds:           req.Rounds,
		OrderMode:        req.OrderMode,
		TimePerPickSec:   req.TimePerPickSec,
		ParticipantOrder: orderIDs,
		PositionLimits:   req.PositionLimits,
	}
	// Resolving up front rejects a bad order before anything is stored.
	if _, err := order.Resolve(cfg.ParticipantOrder, cfg.Rounds, cfg.OrderMode); err != nil {
		return nil, err
	}

	d := models.Draft{
		ID:          draftID,
		LeagueID:    req.LeagueID,
		Status:      models.DraftStatusScheduled,
		Config:      cfg,
		ScheduledAt: req.ScheduledAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := store.Call(ctx, a.storeTimeout, func(ctx context.Context) error {
		return a.store.CreateDraft(ctx, d, participants, req.Pool)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("league_id", d.LeagueID.String()).
		Str("order_mode", string(cfg.OrderMode)).
		Int("teams", cfg.TeamCount()).
		Int("rounds", cfg.Rounds).
		Int("pool_size", len(req.Pool)).
		Time("scheduled_at", d.ScheduledAt).
		Msg("created draft")
	return &d, nil
}

// GetDraft retrieves a draft by ID
func (a *App) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	var d *models.Draft
	err := store.Call(ctx, a.storeTimeout, func(ctx context.Context) error {
		var err error
		d, err = a.store.GetDraft(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

// GetSnapshot returns the draft, its state if started, participants and schedule.
func (a *App) GetSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	d, err := a.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Draft: *d}

	err = store.Call(ctx, a.storeTimeout, func(ctx context.Context) error {
		var err error
		if snap.Participants, err = a.store.ListParticipants(ctx, id); err != nil {
			return err
		}
		st, err := a.store.GetState(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		snap.State = st
		snap.Schedule, err = a.store.GetSchedule(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load draft snapshot: %w", err)
	}
	return snap, nil
}

// GetState returns the versioned state of a started draft.
func (a *App) GetState(ctx context.Context, id uuid.UUID) (*models.DraftState, error) {
	var st *models.DraftState
	err := store.Call(ctx, a.storeTimeout, func(ctx context.Context) error {
		var err error
		st, err = a.store.GetState(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft state: %w", err)
	}
	return st, nil
}

func validateCreateDraftRequest(req CreateDraftRequest) error {
	if req.LeagueID == uuid.Nil {
		return fmt.Errorf("%w: league_id is required", drafterr.ErrInvalidConfiguration)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", drafterr.ErrInvalidConfiguration)
	}
	if req.TimePerPickSec < 0 {
		return fmt.Errorf("%w: time_per_pick_sec cannot be negative", drafterr.ErrInvalidConfiguration)
	}
	for pos, limit := range req.PositionLimits {
		if limit < 0 {
			return fmt.Errorf("%w: position limit for %s cannot be negative", drafterr.ErrInvalidConfiguration, pos)
		}
	}
	for i, p := range req.Participants {
		if p.DisplayName == "" {
			return fmt.Errorf("%w: participant %d has no display name", drafterr.ErrInvalidConfiguration, i+1)
		}
	}

	// Every slot must be fillable, or the last picks could never be made.
	slots := req.Rounds * len(req.Participants)
	if req.Rounds > 0 && len(req.Participants) > 0 && len(req.Pool) < slots {
		return fmt.Errorf("%w: pool has %d players, need at least %d for %d rounds of %d teams",
			drafterr.ErrInvalidConfiguration, len(req.Pool), slots, req.Rounds, len(req.Participants))
	}

	seen := make(map[uuid.UUID]struct{}, len(req.Pool))
	for _, p := range req.Pool {
		if p.ID == uuid.Nil {
			return fmt.Errorf("%w: pool player %q has no id", drafterr.ErrInvalidConfiguration, p.FullName)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: pool player %s listed twice", drafterr.ErrInvalidConfiguration, p.ID)
		}
		if p.Position == "" {
			return fmt.Errorf("%w: pool player %s has no position", drafterr.ErrInvalidConfiguration, p.ID)
		}
		if p.Rank < 1 {
			return fmt.Errorf("%w: pool player %s has rank %d, ranks start at 1", drafterr.ErrInvalidConfiguration, p.ID, p.Rank)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
