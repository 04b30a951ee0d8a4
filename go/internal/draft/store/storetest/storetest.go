// Package storetest is a contract suite every store backend runs.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture is a two-team, one-round draft with a three-player pool.
type Fixture struct {
	Draft        models.Draft
	Participants []models.Participant
	Pool         []models.Player
}

// NewFixture builds a scheduled draft starting at start.
func NewFixture(start time.Time) Fixture {
	draftID := uuid.New()
	a := models.Participant{ID: uuid.New(), DraftID: draftID, DisplayName: "A"}
	b := models.Participant{ID: uuid.New(), DraftID: draftID, DisplayName: "B"}
	return Fixture{
		Draft: models.Draft{
			ID:       draftID,
			LeagueID: uuid.New(),
			Status:   models.DraftStatusScheduled,
			Config: models.DraftConfig{
				Rounds:           1,
				OrderMode:        models.OrderModeSnake,
				TimePerPickSec:   60,
				ParticipantOrder: []uuid.UUID{a.ID, b.ID},
			},
			ScheduledAt: start,
			CreatedAt:   start.Add(-time.Hour),
			UpdatedAt:   start.Add(-time.Hour),
		},
		Participants: []models.Participant{a, b},
		Pool: []models.Player{
			{ID: uuid.New(), FullName: "Quarterback One", Position: "QB", Rank: 1},
			{ID: uuid.New(), FullName: "Runner One", Position: "RB", Rank: 2},
			{ID: uuid.New(), FullName: "Receiver One", Position: "WR", Rank: 3},
		},
	}
}

func event(draftID uuid.UUID, typ string, at time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:        uuid.New(),
		DraftID:   draftID,
		EventType: typ,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: at,
	}
}

// Run exercises newStore against the store contract.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("create and read", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
		fx := NewFixture(start)

		require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
		assert.ErrorIs(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool), store.ErrAlreadyExists)

		d, err := s.GetDraft(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusScheduled, d.Status)
		assert.Equal(t, fx.Draft.Config.ParticipantOrder, d.Config.ParticipantOrder)

		scheduled, err := s.ListDraftsByStatus(ctx, models.DraftStatusScheduled, nil, 10)
		require.NoError(t, err)
		require.Len(t, scheduled, 1)

		pool, err := s.ListPool(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Len(t, pool, 3)

		_, err = s.GetState(ctx, fx.Draft.ID)
		assert.ErrorIs(t, err, drafterr.ErrNotFound)
		_, err = s.GetDraft(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list drafts pages by cursor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)

		// Two drafts share a start time so the id breaks the tie.
		var want []models.Draft
		for _, offset := range []time.Duration{time.Hour, 0, time.Minute, 0, 2 * time.Hour} {
			fx := NewFixture(start.Add(offset))
			require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
			want = append(want, fx.Draft)
		}
		want = store.PageDrafts(want, nil, 0)

		var (
			got   []uuid.UUID
			after *store.DraftCursor
		)
		for pages := 0; ; pages++ {
			require.Less(t, pages, 5, "paging does not terminate")
			page, err := s.ListDraftsByStatus(ctx, models.DraftStatusScheduled, after, 2)
			require.NoError(t, err)
			for _, d := range page {
				got = append(got, d.ID)
			}
			if len(page) < 2 {
				break
			}
			after = store.CursorAfter(page[len(page)-1])
		}

		wantIDs := make([]uuid.UUID, len(want))
		for i, d := range want {
			wantIDs[i] = d.ID
		}
		assert.Equal(t, wantIDs, got)

		active, err := s.ListDraftsByStatus(ctx, models.DraftStatusActive, nil, 2)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("activate is conditional", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
		fx := NewFixture(start)
		require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))

		p := activateParams(t, fx, start)
		require.NoError(t, s.ActivateDraft(ctx, p))
		assert.ErrorIs(t, s.ActivateDraft(ctx, p), store.ErrStatusConflict)

		st, err := s.GetState(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), st.Version)
		assert.Equal(t, fx.Participants[0].ID, st.OnClockParticipantID)
		assert.True(t, st.Deadline.Equal(start.Add(time.Minute)))

		slots, err := s.GetSchedule(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Len(t, slots, 2)

		unsent, err := s.FetchUnsentOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, unsent, 1)
		assert.Equal(t, "DraftStarted", unsent[0].EventType)
	})

	t.Run("commit enforces keys and version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
		fx := NewFixture(start)
		require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
		ap := activateParams(t, fx, start)
		require.NoError(t, s.ActivateDraft(ctx, ap))

		at := start.Add(10 * time.Second)
		first := commitParams(fx, ap.State, 1, fx.Participants[0].ID, fx.Pool[0], "tok-1", at)
		require.NoError(t, s.CommitPick(ctx, first))

		// Same token again.
		assert.ErrorIs(t, s.CommitPick(ctx, first), store.ErrDuplicateToken)

		// Same overall number with a stale version.
		dupOverall := commitParams(fx, ap.State, 1, fx.Participants[0].ID, fx.Pool[1], "tok-2", at)
		assert.ErrorIs(t, s.CommitPick(ctx, dupOverall), drafterr.ErrStaleState)

		st, err := s.GetState(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), st.Version)
		assert.Equal(t, 2, st.CurrentPick)

		// Player already taken.
		dupPlayer := commitParams(fx, *st, 2, fx.Participants[1].ID, fx.Pool[0], "tok-3", at)
		assert.ErrorIs(t, s.CommitPick(ctx, dupPlayer), drafterr.ErrPlayerAlreadyTaken)

		// Stale version on the next slot.
		stale := *st
		stale.Version = 1
		wrongVersion := commitParams(fx, stale, 2, fx.Participants[1].ID, fx.Pool[1], "tok-4", at)
		assert.ErrorIs(t, s.CommitPick(ctx, wrongVersion), store.ErrVersionConflict)

		// Final pick completes the draft.
		last := commitParams(fx, *st, 2, fx.Participants[1].ID, fx.Pool[1], "tok-5", at.Add(time.Second))
		last.Next.Status = models.DraftStatusComplete
		require.NoError(t, s.CommitPick(ctx, last))

		d, err := s.GetDraft(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusComplete, d.Status)
		require.NotNil(t, d.CompletedAt)

		picks, err := s.ListPicks(ctx, fx.Draft.ID)
		require.NoError(t, err)
		require.Len(t, picks, 2)
		assert.Equal(t, 1, picks[0].OverallPick)
		assert.Equal(t, 2, picks[1].OverallPick)

		got, err := s.GetPickByToken(ctx, fx.Draft.ID, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, fx.Pool[0].ID, got.PlayerID)

		parts, err := s.ListParticipants(ctx, fx.Draft.ID)
		require.NoError(t, err)
		for _, p := range parts {
			if p.ID == fx.Participants[0].ID {
				assert.Equal(t, 1, p.FilledPositions["QB"])
			}
		}
	})

	t.Run("transition and cancel", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
		fx := NewFixture(start)
		require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
		ap := activateParams(t, fx, start)
		require.NoError(t, s.ActivateDraft(ctx, ap))

		paused := ap.State
		paused.Status = models.DraftStatusPaused
		paused.Version = 2
		paused.RemainingOnPause = 30 * time.Second
		paused.Deadline = time.Time{}
		paused.UpdatedAt = start.Add(30 * time.Second)
		require.NoError(t, s.UpdateState(ctx, store.TransitionParams{ExpectedVersion: 1, Next: paused}))
		assert.ErrorIs(t, s.UpdateState(ctx, store.TransitionParams{ExpectedVersion: 1, Next: paused}), store.ErrVersionConflict)

		st, err := s.GetState(ctx, fx.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusPaused, st.Status)
		assert.Equal(t, 30*time.Second, st.RemainingOnPause)
		assert.True(t, st.Deadline.IsZero())

		other := NewFixture(start)
		require.NoError(t, s.CreateDraft(ctx, other.Draft, other.Participants, other.Pool))
		require.NoError(t, s.CancelScheduled(ctx, other.Draft.ID, start, nil))
		assert.ErrorIs(t, s.CancelScheduled(ctx, other.Draft.ID, start, nil), store.ErrStatusConflict)

		d, err := s.GetDraft(ctx, other.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusCanceled, d.Status)
	})

	t.Run("outbox lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
		fx := NewFixture(start)
		require.NoError(t, s.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
		ap := activateParams(t, fx, start)
		ap.Events = append(ap.Events, event(fx.Draft.ID, "PickStarted", start))
		require.NoError(t, s.ActivateDraft(ctx, ap))

		unsent, err := s.FetchUnsentOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, unsent, 2)

		byID, err := s.FetchOutboxByID(ctx, unsent[0].ID)
		require.NoError(t, err)
		assert.Equal(t, unsent[0].EventType, byID.EventType)

		require.NoError(t, s.MarkOutboxSent(ctx, unsent[0].ID, start))
		_, err = s.FetchOutboxByID(ctx, unsent[0].ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		rest, err := s.FetchUnsentOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, unsent[1].ID, rest[0].ID)
	})
}

func activateParams(t *testing.T, fx Fixture, start time.Time) store.ActivateParams {
	t.Helper()
	slots, err := order.Resolve(fx.Draft.Config.ParticipantOrder, fx.Draft.Config.Rounds, fx.Draft.Config.OrderMode)
	require.NoError(t, err)
	return store.ActivateParams{
		DraftID:   fx.Draft.ID,
		StartedAt: start,
		Schedule:  slots,
		State: models.DraftState{
			DraftID:              fx.Draft.ID,
			Status:               models.DraftStatusActive,
			CurrentPick:          1,
			CurrentRound:         1,
			OnClockParticipantID: slots[0].ParticipantID,
			PickStartedAt:        start,
			Deadline:             start.Add(time.Minute),
			Version:              1,
			UpdatedAt:            start,
		},
		Events: []models.OutboxEvent{event(fx.Draft.ID, "DraftStarted", start)},
	}
}

func commitParams(fx Fixture, cur models.DraftState, overall int, participant uuid.UUID, player models.Player, token string, at time.Time) store.CommitParams {
	next := cur
	next.CurrentPick = overall + 1
	next.Version = cur.Version + 1
	next.PickStartedAt = at
	next.Deadline = at.Add(time.Minute)
	next.UpdatedAt = at
	return store.CommitParams{
		Pick: models.DraftPick{
			ID:               uuid.New(),
			DraftID:          fx.Draft.ID,
			OverallPick:      overall,
			Round:            1,
			PickInRound:      overall,
			ParticipantID:    participant,
			PlayerID:         player.ID,
			PickedAt:         at,
			IdempotencyToken: token,
		},
		Position:        player.Position,
		ExpectedVersion: cur.Version,
		Next:            next,
		Events:          []models.OutboxEvent{event(fx.Draft.ID, "PickMade", at)},
	}
}
