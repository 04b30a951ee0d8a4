// Package orchestrator drives drafts through time: it starts drafts that are
// due, autopicks for participants whose clock ran out, and handles pause,
// resume and cancel. No instance owns a draft; every advance goes through the
// pick processor and the store's version check, so any number of
// orchestrators and human submissions can run side by side.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/autopick"
	"github.com/kpm34/cfbdraft/go/internal/draft/clock"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Store is what the orchestrator reads and writes directly. Picks are never
// committed here; they go through PickSubmitter.
type Store interface {
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error)
	ListDraftsByStatus(ctx context.Context, status models.DraftStatus, after *store.DraftCursor, limit int) ([]models.Draft, error)
	ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error)
	ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error)
	ActivateDraft(ctx context.Context, p store.ActivateParams) error
	UpdateState(ctx context.Context, p store.TransitionParams) error
	CancelScheduled(ctx context.Context, draftID uuid.UUID, at time.Time, events []models.OutboxEvent) error
}

// PickSubmitter commits picks. *pick.App implements it.
type PickSubmitter interface {
	Submit(ctx context.Context, req pick.SubmitRequest) (*pick.Result, error)
}

// Config tunes sweeps and retries.
type Config struct {
	// Parallelism bounds how many drafts a sweep works on at once.
	Parallelism int
	// BatchSize is how many drafts a sweep loads per page.
	BatchSize    int
	TickInterval time.Duration
	StoreTimeout time.Duration
	// RetryMaxTries bounds attempts on transient store failures.
	RetryMaxTries        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Parallelism:          10,
		BatchSize:            500,
		TickInterval:         time.Second,
		StoreTimeout:         5 * time.Second,
		RetryMaxTries:        4,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     time.Second,
	}
}

// StartResult reports what Start did.
type StartResult struct {
	DraftID uuid.UUID          `json:"draft_id"`
	Status  models.DraftStatus `json:"status"`
	// Started is false when the draft was already past scheduled.
	Started bool               `json:"started"`
	State   *models.DraftState `json:"state,omitempty"`
}

type Orchestrator struct {
	store      Store
	picks      PickSubmitter
	selector   *autopick.Selector
	clock      clockwork.Clock
	cfg        Config
	wakeCh     chan struct{}
	instanceID string // unique ID for this scheduler instance

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// New creates an orchestrator. A nil selector uses the pool's static rank and
// a nil clock uses the wall clock.
func New(st Store, picks PickSubmitter, selector *autopick.Selector, clk clockwork.Clock, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.RetryMaxTries == 0 {
		cfg.RetryMaxTries = def.RetryMaxTries
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = def.RetryMaxInterval
	}
	if selector == nil {
		selector = autopick.NewSelector(nil)
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Orchestrator{
		store:      st,
		picks:      picks,
		selector:   selector,
		clock:      clk,
		cfg:        cfg,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8], // short ID for logging
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Start activates a scheduled draft whose start time has arrived. Calling it
// on a draft that already left scheduled is a no-op that reports the current
// status.
func (o *Orchestrator) Start(ctx context.Context, draftID uuid.UUID, now time.Time) (*StartResult, error) {
	now = now.UTC()
	draft, err := o.loadDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusScheduled {
		return o.alreadyStarted(ctx, draft)
	}
	if now.Before(draft.ScheduledAt) {
		return nil, fmt.Errorf("%w: scheduled for %s", drafterr.ErrNotDue, draft.ScheduledAt.Format(time.RFC3339))
	}

	slots, err := order.Resolve(draft.Config.ParticipantOrder, draft.Config.Rounds, draft.Config.OrderMode)
	if err != nil {
		return nil, err
	}

	first := slots[0]
	st := models.DraftState{
		DraftID:              draftID,
		Status:               models.DraftStatusActive,
		CurrentPick:          first.OverallPick,
		CurrentRound:         first.Round,
		OnClockParticipantID: first.ParticipantID,
		PickStartedAt:        now,
		Deadline:             clock.DeadlineFor(now, draft.Config.PickDuration()),
		Version:              1,
		UpdatedAt:            now,
	}

	started, err := events.New(draftID, events.TypeDraftStarted, events.DraftStartedPayload{
		DraftID:     draftID.String(),
		OrderMode:   string(draft.Config.OrderMode),
		StartedAt:   now,
		TotalRounds: draft.Config.Rounds,
		TotalPicks:  len(slots),
	}, now)
	if err != nil {
		return nil, err
	}
	onClock, err := events.PickStarted(draft.Config, st, first)
	if err != nil {
		return nil, err
	}

	err = o.retry(ctx, "activate draft", func(ctx context.Context) error {
		return o.store.ActivateDraft(ctx, store.ActivateParams{
			DraftID:   draftID,
			StartedAt: now,
			Schedule:  slots,
			State:     st,
			Events:    []models.OutboxEvent{started, onClock},
		})
	})
	if errors.Is(err, store.ErrStatusConflict) {
		// Another instance started it first.
		draft, lerr := o.loadDraft(ctx, draftID)
		if lerr != nil {
			return nil, lerr
		}
		return o.alreadyStarted(ctx, draft)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to activate draft: %w", err)
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Str("order_mode", string(draft.Config.OrderMode)).
		Int("total_picks", len(slots)).
		Str("on_clock", first.ParticipantID.String()).
		Time("deadline", st.Deadline).
		Str("instance", o.instanceID).
		Msg("draft started")

	o.Wake()
	return &StartResult{DraftID: draftID, Status: models.DraftStatusActive, Started: true, State: &st}, nil
}

func (o *Orchestrator) alreadyStarted(ctx context.Context, draft *models.Draft) (*StartResult, error) {
	res := &StartResult{DraftID: draft.ID, Status: draft.Status}
	if draft.Status == models.DraftStatusCanceled {
		// Canceled before start has no state.
		return res, nil
	}
	st, err := o.loadState(ctx, draft.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if st != nil {
		res.Status = st.Status
		res.State = st
	}
	log.Debug().
		Str("draft_id", draft.ID.String()).
		Str("status", string(res.Status)).
		Msg("start ignored, draft already past scheduled")
	return res, nil
}

// SubmitPick is the entry point for human picks. It submits against the
// state it just loaded. On a stale version it reloads and retries once, but
// only while the same participant is still on the clock.
func (o *Orchestrator) SubmitPick(ctx context.Context, draftID uuid.UUID, token string, participantID, playerID uuid.UUID) (*pick.Result, error) {
	st, err := o.loadState(ctx, draftID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	req := pick.SubmitRequest{
		DraftID:          draftID,
		IdempotencyToken: token,
		ParticipantID:    participantID,
		PlayerID:         playerID,
	}
	if st != nil {
		req.ExpectedVersion = st.Version
	}

	res, err := o.submit(ctx, req)
	if errors.Is(err, drafterr.ErrStaleState) {
		fresh, lerr := o.loadState(ctx, draftID)
		if lerr != nil {
			return nil, lerr
		}
		// Only a version bump on the same slot is retried. If the draft moved
		// on, the request was for a pick someone else already made, even when
		// the participant is on the clock again at a snake turn.
		if st == nil || fresh.Status != models.DraftStatusActive ||
			fresh.CurrentPick != st.CurrentPick || fresh.OnClockParticipantID != participantID {
			return nil, err
		}
		log.Debug().
			Str("draft_id", draftID.String()).
			Int64("stale_version", req.ExpectedVersion).
			Int64("version", fresh.Version).
			Msg("retrying pick against reloaded state")
		req.ExpectedVersion = fresh.Version
		res, err = o.submit(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		o.Wake()
	}
	return res, nil
}

func (o *Orchestrator) submit(ctx context.Context, req pick.SubmitRequest) (*pick.Result, error) {
	var res *pick.Result
	// The token makes a retried submit safe: a commit that landed replays.
	err := o.retry(ctx, "submit pick", func(ctx context.Context) error {
		var err error
		res, err = o.picks.Submit(ctx, req)
		return err
	})
	return res, err
}

// Pause stops the clock of an active draft, keeping the unused time.
func (o *Orchestrator) Pause(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.DraftState, error) {
	return o.pause(ctx, draftID, now, "manual pause", nil)
}

func (o *Orchestrator) pause(ctx context.Context, draftID uuid.UUID, now time.Time, reason string, extra func(st models.DraftState) (models.OutboxEvent, error)) (*models.DraftState, error) {
	now = now.UTC()
	next, err := o.transition(ctx, draftID, func(cur models.DraftState) (models.DraftState, []models.OutboxEvent, error) {
		if cur.Status != models.DraftStatusActive {
			return cur, nil, fmt.Errorf("%w: status is %s", drafterr.ErrDraftNotActive, cur.Status)
		}
		next := cur
		next.Status = models.DraftStatusPaused
		next.RemainingOnPause = clock.Remaining(cur.Deadline, now)
		next.Deadline = time.Time{}
		next.Version = cur.Version + 1
		next.UpdatedAt = now

		paused, err := events.New(draftID, events.TypeDraftPaused, events.DraftPausedPayload{
			DraftID:      draftID.String(),
			PausedAt:     now,
			RemainingSec: next.RemainingOnPause.Seconds(),
			Reason:       reason,
		}, now)
		if err != nil {
			return cur, nil, err
		}
		evs := []models.OutboxEvent{paused}
		if extra != nil {
			ev, err := extra(cur)
			if err != nil {
				return cur, nil, err
			}
			evs = append(evs, ev)
		}
		return next, evs, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("draft_id", draftID.String()).
		Str("reason", reason).
		Dur("remaining", next.RemainingOnPause).
		Msg("draft paused")
	return next, nil
}

// Resume restarts a paused draft's clock with the time it had left.
func (o *Orchestrator) Resume(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.DraftState, error) {
	now = now.UTC()
	draft, err := o.loadDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	untimed := draft.Config.PickDuration() <= 0

	next, err := o.transition(ctx, draftID, func(cur models.DraftState) (models.DraftState, []models.OutboxEvent, error) {
		if cur.Status != models.DraftStatusPaused {
			return cur, nil, fmt.Errorf("%w: status is %s", drafterr.ErrDraftNotActive, cur.Status)
		}
		next := cur
		next.Status = models.DraftStatusActive
		next.Deadline = clock.ResumeDeadline(now, cur.RemainingOnPause, untimed)
		next.RemainingOnPause = 0
		next.Version = cur.Version + 1
		next.UpdatedAt = now

		p := events.DraftResumedPayload{DraftID: draftID.String(), ResumedAt: now}
		if !next.Deadline.IsZero() {
			d := next.Deadline
			p.TimeoutAt = &d
		}
		resumed, err := events.New(draftID, events.TypeDraftResumed, p, now)
		if err != nil {
			return cur, nil, err
		}
		return next, []models.OutboxEvent{resumed}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("draft_id", draftID.String()).
		Time("deadline", next.Deadline).
		Msg("draft resumed")
	o.Wake()
	return next, nil
}

// Cancel ends a draft that is scheduled, active or paused. Canceling a
// canceled draft is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.Draft, error) {
	now = now.UTC()
	draft, err := o.loadDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}

	canceled, err := events.New(draftID, events.TypeDraftCanceled, events.DraftCanceledPayload{
		DraftID:    draftID.String(),
		CanceledAt: now,
	}, now)
	if err != nil {
		return nil, err
	}

	switch draft.Status {
	case models.DraftStatusCanceled:
		return draft, nil
	case models.DraftStatusComplete:
		return nil, fmt.Errorf("%w: draft already complete", drafterr.ErrDraftNotActive)
	case models.DraftStatusScheduled:
		err = o.retry(ctx, "cancel scheduled draft", func(ctx context.Context) error {
			return o.store.CancelScheduled(ctx, draftID, now, []models.OutboxEvent{canceled})
		})
		if errors.Is(err, store.ErrStatusConflict) {
			// Started between our read and write; cancel the running draft.
			return o.Cancel(ctx, draftID, now)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to cancel draft: %w", err)
		}
	default:
		_, err = o.transition(ctx, draftID, func(cur models.DraftState) (models.DraftState, []models.OutboxEvent, error) {
			if cur.Status.Terminal() {
				return cur, nil, fmt.Errorf("%w: status is %s", drafterr.ErrDraftNotActive, cur.Status)
			}
			next := cur
			next.Status = models.DraftStatusCanceled
			next.Deadline = time.Time{}
			next.RemainingOnPause = 0
			next.Version = cur.Version + 1
			next.UpdatedAt = now
			return next, []models.OutboxEvent{canceled}, nil
		})
		if err != nil {
			return nil, err
		}
	}

	log.Info().Str("draft_id", draftID.String()).Msg("draft canceled")
	return o.loadDraft(ctx, draftID)
}

// transitionAttempts bounds how often a lifecycle write is rebuilt after
// losing a version race.
const transitionAttempts = 3

// transition applies build to the current state with a conditional write,
// rebuilding from a fresh read when a concurrent writer got there first.
func (o *Orchestrator) transition(ctx context.Context, draftID uuid.UUID, build func(cur models.DraftState) (models.DraftState, []models.OutboxEvent, error)) (*models.DraftState, error) {
	var lastErr error
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		cur, err := o.loadState(ctx, draftID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: draft has not started", drafterr.ErrDraftNotActive)
		}
		if err != nil {
			return nil, err
		}
		next, evs, err := build(*cur)
		if err != nil {
			return nil, err
		}
		err = o.retry(ctx, "update draft state", func(ctx context.Context) error {
			return o.store.UpdateState(ctx, store.TransitionParams{
				ExpectedVersion: cur.Version,
				Next:            next,
				Events:          evs,
			})
		})
		if err == nil {
			return &next, nil
		}
		if !errors.Is(err, drafterr.ErrStaleState) {
			return nil, fmt.Errorf("failed to update draft state: %w", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

func (o *Orchestrator) loadDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	var d *models.Draft
	err := o.retry(ctx, "get draft", func(ctx context.Context) error {
		var err error
		d, err = o.store.GetDraft(ctx, draftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

func (o *Orchestrator) loadState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error) {
	var st *models.DraftState
	err := o.retry(ctx, "get draft state", func(ctx context.Context) error {
		var err error
		st, err = o.store.GetState(ctx, draftID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get draft state: %w", err)
	}
	return st, nil
}

// ConfigFrom converts environment settings to a Config.
func ConfigFrom(storeCfg config.StoreConfig, sched config.SchedulerConfig) Config {
	return Config{
		Parallelism:          sched.Parallelism,
		BatchSize:            sched.BatchSize,
		TickInterval:         sched.TickInterval,
		StoreTimeout:         storeCfg.Timeout,
		RetryMaxTries:        sched.RetryMaxTries,
		RetryInitialInterval: sched.RetryInitialInterval,
		RetryMaxInterval:     sched.RetryMaxInterval,
	}
}
