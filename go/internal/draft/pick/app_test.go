package pick

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/memory"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/storetest"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)

// activeDraft is a two team, two round snake draft (A, B, B, A) with a
// four player pool, started at start.
type activeDraft struct {
	fx    storetest.Fixture
	a, b  uuid.UUID
	pool  []models.Player
	clock *clockwork.FakeClock
}

func newActiveDraft(t *testing.T, st store.Store) activeDraft {
	t.Helper()
	ctx := context.Background()
	fx := storetest.NewFixture(start)
	fx.Draft.Config.Rounds = 2
	fx.Pool = append(fx.Pool, models.Player{ID: uuid.New(), FullName: "Tight End One", Position: "TE", Rank: 4})
	require.NoError(t, st.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))

	slots, err := order.Resolve(fx.Draft.Config.ParticipantOrder, 2, models.OrderModeSnake)
	require.NoError(t, err)
	require.NoError(t, st.ActivateDraft(ctx, store.ActivateParams{
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
	}))
	return activeDraft{
		fx:    fx,
		a:     fx.Participants[0].ID,
		b:     fx.Participants[1].ID,
		pool:  fx.Pool,
		clock: clockwork.NewFakeClockAt(start),
	}
}

func (d activeDraft) request(token string, participant, player uuid.UUID, version int64) SubmitRequest {
	return SubmitRequest{
		DraftID:          d.fx.Draft.ID,
		IdempotencyToken: token,
		ParticipantID:    participant,
		PlayerID:         player,
		ExpectedVersion:  version,
	}
}

func TestSubmitCommitsAndAdvances(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	d := newActiveDraft(t, st)
	app := NewApp(st, nil, d.clock, time.Second)

	d.clock.Advance(20 * time.Second)
	res, err := app.Submit(ctx, d.request("tok-1", d.a, d.pool[0].ID, 1))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, res.Pick.OverallPick)
	assert.Equal(t, start.Add(20*time.Second), res.Pick.PickedAt)

	assert.Equal(t, 2, res.State.CurrentPick)
	assert.Equal(t, d.b, res.State.OnClockParticipantID)
	assert.EqualValues(t, 2, res.State.Version)
	assert.Equal(t, start.Add(80*time.Second), res.State.Deadline, "the next clock starts at the commit")

	parts, err := st.ListParticipants(ctx, d.fx.Draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, parts[0].FilledPositions["QB"])

	for i, req := range []SubmitRequest{
		d.request("tok-2", d.b, d.pool[1].ID, 2),
		d.request("tok-3", d.b, d.pool[2].ID, 3),
		d.request("tok-4", d.a, d.pool[3].ID, 4),
	} {
		res, err = app.Submit(ctx, req)
		require.NoError(t, err, "pick %d", i+2)
	}
	assert.Equal(t, models.DraftStatusComplete, res.State.Status)
	assert.Equal(t, uuid.Nil, res.State.OnClockParticipantID)

	evs, err := st.FetchUnsentOutbox(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.TypePickMade, evs[0].EventType)
	assert.Equal(t, events.TypePickStarted, evs[1].EventType)
	assert.Equal(t, events.TypeDraftCompleted, evs[len(evs)-1].EventType)

	_, err = app.Submit(ctx, d.request("tok-5", d.b, uuid.New(), 5))
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)
}

// After A takes pool[0] with tok-a1, B is on the clock at version 2. Every
// case below is wrong in more than one way; the earliest check must win.
func TestSubmitValidationOrder(t *testing.T) {
	tests := []struct {
		name     string
		pause    bool
		req      func(d activeDraft) SubmitRequest
		wantErr  error
		replayed bool
	}{
		{
			name:    "inactive draft beats a known token",
			pause:   true,
			req:     func(d activeDraft) SubmitRequest { return d.request("tok-a1", d.a, d.pool[0].ID, 2) },
			wantErr: drafterr.ErrDraftNotActive,
		},
		{
			name:     "known token beats turn and version",
			req:      func(d activeDraft) SubmitRequest { return d.request("tok-a1", d.a, d.pool[0].ID, 1) },
			replayed: true,
		},
		{
			name:    "out of turn beats a taken player and a stale version",
			req:     func(d activeDraft) SubmitRequest { return d.request("tok-x", d.a, d.pool[0].ID, 1) },
			wantErr: drafterr.ErrOutOfTurn,
		},
		{
			name:    "taken player beats a stale version",
			req:     func(d activeDraft) SubmitRequest { return d.request("tok-x", d.b, d.pool[0].ID, 1) },
			wantErr: drafterr.ErrPlayerAlreadyTaken,
		},
		{
			name:    "unknown player beats a stale version",
			req:     func(d activeDraft) SubmitRequest { return d.request("tok-x", d.b, uuid.New(), 1) },
			wantErr: drafterr.ErrInvalidPick,
		},
		{
			name:    "stale version",
			req:     func(d activeDraft) SubmitRequest { return d.request("tok-x", d.b, d.pool[1].ID, 1) },
			wantErr: drafterr.ErrStaleState,
		},
		{
			name:    "missing token",
			req:     func(d activeDraft) SubmitRequest { return d.request(" ", d.b, d.pool[1].ID, 2) },
			wantErr: drafterr.ErrInvalidPick,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := memory.New()
			d := newActiveDraft(t, st)
			app := NewApp(st, nil, d.clock, time.Second)

			first, err := app.Submit(ctx, d.request("tok-a1", d.a, d.pool[0].ID, 1))
			require.NoError(t, err)

			if tt.pause {
				paused := first.State
				paused.Status = models.DraftStatusPaused
				paused.Version++
				require.NoError(t, st.UpdateState(ctx, store.TransitionParams{ExpectedVersion: first.State.Version, Next: paused}))
			}

			res, err := app.Submit(ctx, tt.req(d))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.replayed, res.Replayed)
				assert.Equal(t, first.Pick.ID, res.Pick.ID)
			}

			picks, err := st.ListPicks(ctx, d.fx.Draft.ID)
			require.NoError(t, err)
			assert.Len(t, picks, 1, "nothing beyond the first pick is committed")
		})
	}
}

// tokenRaceStore lets a concurrent retry of the same request commit first,
// then reports the token conflict the losing commit would see.
type tokenRaceStore struct {
	*memory.Store
	once sync.Once
}

func (s *tokenRaceStore) CommitPick(ctx context.Context, p store.CommitParams) error {
	var (
		raced bool
		err   error
	)
	s.once.Do(func() {
		winner := p
		winner.Pick.ID = uuid.New()
		err = s.Store.CommitPick(ctx, winner)
		raced = true
	})
	if !raced {
		return s.Store.CommitPick(ctx, p)
	}
	if err != nil {
		return err
	}
	return store.ErrDuplicateToken
}

func TestSubmitReplaysWhenTokenRaceIsLost(t *testing.T) {
	ctx := context.Background()
	st := &tokenRaceStore{Store: memory.New()}
	d := newActiveDraft(t, st)
	app := NewApp(st, nil, d.clock, time.Second)

	res, err := app.Submit(ctx, d.request("tok-1", d.a, d.pool[0].ID, 1))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, d.pool[0].ID, res.Pick.PlayerID)
	assert.EqualValues(t, 2, res.State.Version)

	picks, err := st.ListPicks(ctx, d.fx.Draft.ID)
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, picks[0].ID, res.Pick.ID)
}

func TestListAvailablePlayers(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	d := newActiveDraft(t, st)
	app := NewApp(st, nil, d.clock, time.Second)

	_, err := app.Submit(ctx, d.request("tok-1", d.a, d.pool[1].ID, 1))
	require.NoError(t, err)

	avail, err := app.ListAvailablePlayers(ctx, d.fx.Draft.ID)
	require.NoError(t, err)
	require.Len(t, avail, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{avail[0].Rank, avail[1].Rank, avail[2].Rank})
}
