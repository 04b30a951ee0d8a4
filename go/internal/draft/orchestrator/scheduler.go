package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/clock"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ActionKind names what a sweep did to one draft.
type ActionKind string

const (
	ActionStarted           ActionKind = "started"
	ActionAutopicked        ActionKind = "autopicked"
	ActionAdvancedElsewhere ActionKind = "advanced_elsewhere"
	ActionHalted            ActionKind = "halted"
	ActionSkippedInFlight   ActionKind = "skipped_in_flight"
	ActionFailed            ActionKind = "failed"
)

// Action is one outcome of a sweep.
type Action struct {
	DraftID       uuid.UUID  `json:"draft_id"`
	Kind          ActionKind `json:"kind"`
	OverallPick   int        `json:"overall_pick,omitempty"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	PlayerID      *uuid.UUID `json:"player_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func failed(draftID uuid.UUID, err error) *Action {
	return &Action{DraftID: draftID, Kind: ActionFailed, Error: err.Error()}
}

// StartDueDrafts starts every scheduled draft whose start time is at or
// before now.
func (o *Orchestrator) StartDueDrafts(ctx context.Context, now time.Time) ([]Action, error) {
	var actions []Action
	err := o.eachPage(ctx, models.DraftStatusScheduled, func(page []models.Draft) bool {
		var due []models.Draft
		for _, d := range page {
			if !now.Before(d.ScheduledAt) {
				due = append(due, d)
			}
		}
		if len(due) > 0 {
			log.Info().
				Int("count_due", len(due)).
				Str("instance", o.instanceID).
				Msg("starting due drafts")
			actions = append(actions, o.fanOut(ctx, due, func(ctx context.Context, d models.Draft) *Action {
				return o.startDue(ctx, d, now)
			})...)
		}
		// Pages come in start time order, so a short list of due drafts
		// means the rest are not due either.
		return len(due) == len(page)
	})
	sortActions(actions)
	if err != nil {
		return actions, fmt.Errorf("failed to list scheduled drafts: %w", err)
	}
	return actions, nil
}

func (o *Orchestrator) startDue(ctx context.Context, d models.Draft, now time.Time) *Action {
	res, err := o.Start(ctx, d.ID, now)
	if err != nil {
		log.Error().Err(err).Str("draft_id", d.ID.String()).Msg("failed to start draft")
		return failed(d.ID, err)
	}
	if !res.Started {
		return nil
	}
	a := &Action{DraftID: d.ID, Kind: ActionStarted}
	if res.State != nil {
		a.OverallPick = res.State.CurrentPick
		pid := res.State.OnClockParticipantID
		a.ParticipantID = &pid
	}
	return a
}

// SweepExpiredPicks autopicks for every active draft whose clock ran out.
func (o *Orchestrator) SweepExpiredPicks(ctx context.Context, now time.Time) ([]Action, error) {
	return o.Tick(ctx, now)
}

// Tick looks at every active draft once, one page at a time. Drafts are
// handled concurrently up to the configured parallelism and never wait on
// each other; a draft this instance is already working on is skipped.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) ([]Action, error) {
	var actions []Action
	err := o.eachPage(ctx, models.DraftStatusActive, func(page []models.Draft) bool {
		actions = append(actions, o.fanOut(ctx, page, func(ctx context.Context, d models.Draft) *Action {
			return o.processDraft(ctx, d, now)
		})...)
		return true
	})
	sortActions(actions)
	if err != nil {
		return actions, fmt.Errorf("failed to list active drafts: %w", err)
	}
	return actions, nil
}

// eachPage hands fn every draft with the given status in (scheduled_at, id)
// order, BatchSize at a time, until a short page or fn returns false. The
// keyset cursor keeps pages stable while fn changes the drafts it was given.
func (o *Orchestrator) eachPage(ctx context.Context, status models.DraftStatus, fn func(page []models.Draft) bool) error {
	var after *store.DraftCursor
	for {
		var page []models.Draft
		err := o.retry(ctx, "list drafts", func(ctx context.Context) error {
			var err error
			page, err = o.store.ListDraftsByStatus(ctx, status, after, o.cfg.BatchSize)
			return err
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if !fn(page) || len(page) < o.cfg.BatchSize {
			return nil
		}
		after = store.CursorAfter(page[len(page)-1])
	}
}

// fanOut runs fn for each draft on a bounded errgroup. fn reports its own
// failures as actions so one draft never cancels the others.
func (o *Orchestrator) fanOut(ctx context.Context, drafts []models.Draft, fn func(ctx context.Context, d models.Draft) *Action) []Action {
	var (
		mu      sync.Mutex
		actions []Action
	)
	record := func(a *Action) {
		if a == nil {
			return
		}
		mu.Lock()
		actions = append(actions, *a)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for _, d := range drafts {
		if !o.claim(d.ID) {
			log.Debug().Str("draft_id", d.ID.String()).Str("instance", o.instanceID).Msg("skipping draft already in flight")
			record(&Action{DraftID: d.ID, Kind: ActionSkippedInFlight})
			continue
		}
		g.Go(func() error {
			defer o.release(d.ID)
			record(fn(gctx, d))
			return nil
		})
	}
	_ = g.Wait()
	return actions
}

func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		return bytes.Compare(actions[i].DraftID[:], actions[j].DraftID[:]) < 0
	})
}

func (o *Orchestrator) claim(draftID uuid.UUID) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if o.inFlight[draftID] {
		return false
	}
	o.inFlight[draftID] = true
	return true
}

func (o *Orchestrator) release(draftID uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.inFlight, draftID)
	o.inFlightMu.Unlock()
}

// processDraft autopicks when the on-clock participant's deadline has passed
// or the participant is a bot. Bots never wait for their clock.
func (o *Orchestrator) processDraft(ctx context.Context, d models.Draft, now time.Time) *Action {
	st, err := o.loadState(ctx, d.ID)
	if err != nil {
		log.Error().Err(err).Str("draft_id", d.ID.String()).Msg("failed to load draft state")
		return failed(d.ID, err)
	}
	if st.Status != models.DraftStatusActive {
		return nil
	}

	expired := clock.IsExpired(st.Deadline, now)

	var participants []models.Participant
	err = o.retry(ctx, "list participants", func(ctx context.Context) error {
		var err error
		participants, err = o.store.ListParticipants(ctx, d.ID)
		return err
	})
	if err != nil {
		return failed(d.ID, err)
	}
	onClock, ok := findParticipant(participants, st.OnClockParticipantID)
	if !ok {
		err := fmt.Errorf("%w: on-clock participant %s not in draft", drafterr.ErrInvalidConfiguration, st.OnClockParticipantID)
		log.Error().Err(err).Str("draft_id", d.ID.String()).Msg("draft state is inconsistent")
		return failed(d.ID, err)
	}
	if !expired && !onClock.IsBot {
		return nil
	}

	if expired {
		log.Info().
			Str("draft_id", d.ID.String()).
			Int("overall_pick", st.CurrentPick).
			Time("deadline", st.Deadline).
			Msg("auto-pick timeout firing")
	}
	return o.autopick(ctx, d, *st, onClock, now)
}

func findParticipant(ps []models.Participant, id uuid.UUID) (models.Participant, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return models.Participant{}, false
}

// lostRace reports whether err means some other writer moved the draft.
func lostRace(err error) bool {
	return errors.Is(err, drafterr.ErrStaleState) ||
		errors.Is(err, drafterr.ErrPlayerAlreadyTaken) ||
		errors.Is(err, drafterr.ErrOutOfTurn) ||
		errors.Is(err, drafterr.ErrDraftNotActive)
}
