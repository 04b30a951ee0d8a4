package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Four teams, two snake rounds, 60s clock. D lets the clock run at pick 4,
// is autopicked, and is on the clock again at pick 5.
func TestSnakeDraftWithAutopickAtTheTurn(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B", "C", "D"}, rounds: 2, timePerPickSec: 60})

	res := h.start(sd)
	require.True(t, res.Started)
	assert.Equal(t, sd.id("A"), res.State.OnClockParticipantID)
	assert.Equal(t, t0.Add(time.Minute), res.State.Deadline)

	for i, name := range []string{"A", "B", "C"} {
		h.clock.Advance(10 * time.Second)
		r := h.mustSubmit(sd, name, sd.pool[i])
		assert.Equal(t, i+1, r.Pick.OverallPick)
	}
	st := h.state(sd)
	require.Equal(t, 4, st.CurrentPick)
	require.Equal(t, sd.id("D"), st.OnClockParticipantID)
	lastCommit := t0.Add(30 * time.Second)
	require.Equal(t, lastCommit.Add(time.Minute), st.Deadline, "deadline anchors to the previous commit")

	// One second before the deadline nothing happens.
	actions, err := h.orch.Tick(h.ctx, st.Deadline.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Len(t, h.picksOf(sd), 3)

	// One second after, D is autopicked with the best remaining player. The
	// sweep takes a few seconds to reach the draft, and the next clock starts
	// at the commit.
	fireAt := st.Deadline.Add(time.Second)
	commitAt := fireAt.Add(3 * time.Second)
	h.clock.Advance(commitAt.Sub(h.clock.Now()))
	actions, err = h.orch.Tick(h.ctx, fireAt)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionAutopicked, actions[0].Kind)
	assert.Equal(t, 4, actions[0].OverallPick)
	assert.Equal(t, sd.id("D"), *actions[0].ParticipantID)
	assert.Equal(t, sd.pool[3].ID, *actions[0].PlayerID)

	picks := h.picksOf(sd)
	require.Len(t, picks, 4)
	assert.True(t, picks[3].Autopick)
	assert.Equal(t, commitAt, picks[3].PickedAt)

	st = h.state(sd)
	assert.Equal(t, 5, st.CurrentPick)
	assert.Equal(t, 2, st.CurrentRound)
	assert.Equal(t, sd.id("D"), st.OnClockParticipantID, "snake turn gives D back-to-back picks")
	assert.Equal(t, commitAt.Add(time.Minute), st.Deadline)

	for i, name := range []string{"D", "C", "B", "A"} {
		h.clock.Advance(5 * time.Second)
		r := h.mustSubmit(sd, name, sd.pool[4+i])
		assert.Equal(t, 5+i, r.Pick.OverallPick)
	}

	st = h.state(sd)
	assert.Equal(t, models.DraftStatusComplete, st.Status)
	assert.Equal(t, uuid.Nil, st.OnClockParticipantID)
	assert.True(t, st.Deadline.IsZero())
	assert.Len(t, h.picksOf(sd), 8)

	_, err = h.submit(sd, "A", sd.pool[9])
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)

	types := h.outboxTypes()
	assert.Equal(t, events.TypeDraftStarted, types[0])
	assert.Equal(t, events.TypeDraftCompleted, types[len(types)-1])
}

func TestLinearDraftOrderRepeats(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B", "C"}, rounds: 2, mode: models.OrderModeLinear})
	h.start(sd)

	for i, name := range []string{"A", "B", "C", "A", "B", "C"} {
		st := h.state(sd)
		require.Equal(t, sd.id(name), st.OnClockParticipantID, "pick %d", i+1)
		h.mustSubmit(sd, name, sd.pool[i])
	}
	assert.Equal(t, models.DraftStatusComplete, h.state(sd).Status)
}

func TestSubmitPickErrors(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 2, timePerPickSec: 30})

	_, err := h.submit(sd, "A", sd.pool[0])
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive, "scheduled drafts take no picks")

	h.start(sd)
	_, err = h.submit(sd, "B", sd.pool[0])
	assert.ErrorIs(t, err, drafterr.ErrOutOfTurn)

	_, err = h.orch.SubmitPick(h.ctx, sd.draft.ID, "tok", sd.id("A"), uuid.New())
	assert.ErrorIs(t, err, drafterr.ErrInvalidPick)

	h.mustSubmit(sd, "A", sd.pool[0])
	_, err = h.submit(sd, "B", sd.pool[0])
	assert.ErrorIs(t, err, drafterr.ErrPlayerAlreadyTaken)
}

func TestSubmitPickIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 1})
	h.start(sd)

	first, err := h.orch.SubmitPick(h.ctx, sd.draft.ID, "same-token", sd.id("A"), sd.pool[0].ID)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.orch.SubmitPick(h.ctx, sd.draft.ID, "same-token", sd.id("A"), sd.pool[0].ID)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Pick.ID, again.Pick.ID)
	assert.Len(t, h.picksOf(sd), 1)
}

func TestSubmitPickRetriesOnceOnStaleRead(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 1})
	h.start(sd)

	stale := &staleStateStore{Store: h.store, left: 1}
	o := New(stale, h.picks, nil, h.clock, testConfig())

	res, err := o.SubmitPick(h.ctx, sd.draft.ID, "tok-1", sd.id("A"), sd.pool[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pick.OverallPick)

	// Two stale reads in a row exhaust the single retry.
	stale.left = 2
	_, err = o.SubmitPick(h.ctx, sd.draft.ID, "tok-2", sd.id("B"), sd.pool[1].ID)
	assert.ErrorIs(t, err, drafterr.ErrStaleState)
	assert.Len(t, h.picksOf(sd), 1)
}

// D's request for pick 4 loses to the sweep. D is on the clock again for
// pick 5, but the request was for pick 4 and must not be replayed onto pick 5.
func TestStalePickIsNotCarriedToNextSlot(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B", "C", "D"}, rounds: 2, timePerPickSec: 60})
	h.start(sd)
	for i, name := range []string{"A", "B", "C"} {
		h.mustSubmit(sd, name, sd.pool[i])
	}
	deadline := h.state(sd).Deadline

	racing := &sweepBeforeSubmit{picks: h.picks, sweep: func() {
		actions, err := h.orch.Tick(h.ctx, deadline.Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, []ActionKind{ActionAutopicked}, actionKinds(actions))
	}}
	o := New(h.store, racing, nil, h.clock, testConfig())

	_, err := o.SubmitPick(h.ctx, sd.draft.ID, "d-pick-4", sd.id("D"), sd.pool[5].ID)
	assert.ErrorIs(t, err, drafterr.ErrStaleState)

	picks := h.picksOf(sd)
	require.Len(t, picks, 4)
	assert.True(t, picks[3].Autopick)
	assert.Equal(t, sd.id("D"), picks[3].ParticipantID)

	st := h.state(sd)
	assert.Equal(t, 5, st.CurrentPick)
	assert.Equal(t, sd.id("D"), st.OnClockParticipantID)

	// A fresh request for pick 5 goes through.
	res := h.mustSubmit(sd, "D", sd.pool[5])
	assert.Equal(t, 5, res.Pick.OverallPick)
}

func TestConcurrentSubmissionsCommitOnce(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 2, poolSize: 20})
	h.start(sd)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.submit(sd, "A", sd.pool[i])
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.True(t, lostRace(err), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, h.picksOf(sd), 1)
	assert.Equal(t, 2, h.state(sd).CurrentPick)
	assert.EqualValues(t, 2, h.state(sd).Version)
}

func TestConcurrentSweepsAutopickOnce(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 2, timePerPickSec: 60})
	h.start(sd)

	// Several scheduler instances share the store.
	instances := []*Orchestrator{h.orch, New(h.store, h.picks, nil, h.clock, testConfig()), New(h.store, h.picks, nil, h.clock, testConfig())}
	now := t0.Add(2 * time.Minute)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []Action
	)
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			actions, err := o.Tick(h.ctx, now)
			assert.NoError(t, err)
			mu.Lock()
			all = append(all, actions...)
			mu.Unlock()
		}(instances[i%len(instances)])
	}
	wg.Wait()

	autopicked := 0
	for _, a := range all {
		if a.Kind == ActionAutopicked {
			autopicked++
		}
		assert.NotEqual(t, ActionFailed, a.Kind, a.Error)
	}
	assert.Equal(t, 1, autopicked)
	assert.Len(t, h.picksOf(sd), 1)
	assert.Equal(t, sd.id("B"), h.state(sd).OnClockParticipantID)
}

func TestTickSkipsDraftInFlight(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, timePerPickSec: 60})
	h.start(sd)

	require.True(t, h.orch.claim(sd.draft.ID))
	actions, err := h.orch.Tick(h.ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []ActionKind{ActionSkippedInFlight}, actionKinds(actions))
	assert.Empty(t, h.picksOf(sd))

	h.orch.release(sd.draft.ID)
	actions, err = h.orch.Tick(h.ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []ActionKind{ActionAutopicked}, actionKinds(actions))
}

func TestUntimedDraftNeverExpires(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}})
	res := h.start(sd)
	assert.True(t, res.State.Deadline.IsZero())

	actions, err := h.orch.Tick(h.ctx, t0.Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestStart(t *testing.T) {
	t.Run("not due", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A", "B"}, scheduledAt: t0.Add(time.Minute)})
		_, err := h.orch.Start(h.ctx, sd.draft.ID, t0)
		assert.ErrorIs(t, err, drafterr.ErrNotDue)
	})

	t.Run("idempotent", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A", "B"}, timePerPickSec: 60})
		first := h.start(sd)
		require.True(t, first.Started)

		again := h.start(sd)
		assert.False(t, again.Started)
		assert.Equal(t, models.DraftStatusActive, again.Status)
		assert.Equal(t, first.State.Version, again.State.Version)
		assert.Equal(t, []string{events.TypeDraftStarted, events.TypePickStarted}, h.outboxTypes())
	})

	t.Run("unknown draft", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.orch.Start(h.ctx, uuid.New(), t0)
		assert.ErrorIs(t, err, drafterr.ErrNotFound)
	})

	t.Run("invalid order", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A"}, rounds: 1})
		sd.draft.Config.ParticipantOrder = append(sd.draft.Config.ParticipantOrder, sd.id("A"))
		bad := sd.draft
		bad.ID = uuid.New()
		require.NoError(t, h.store.CreateDraft(h.ctx, bad, nil, nil))
		_, err := h.orch.Start(h.ctx, bad.ID, t0)
		assert.ErrorIs(t, err, drafterr.ErrInvalidConfiguration)
	})
}

func TestSweepsCoverEveryPage(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	h := newHarnessWith(t, cfg)

	var drafts []seededDraft
	for i := 0; i < 5; i++ {
		drafts = append(drafts, h.create(draftSetup{
			teams:          []string{"A", "B"},
			rounds:         3,
			timePerPickSec: 60,
			scheduledAt:    t0.Add(-time.Duration(i) * time.Minute),
		}))
	}
	notDue := h.create(draftSetup{teams: []string{"A", "B"}, scheduledAt: t0.Add(time.Hour)})

	actions, err := h.orch.StartDueDrafts(h.ctx, t0)
	require.NoError(t, err)
	assert.Len(t, actions, 5)
	for _, sd := range drafts {
		assert.Equal(t, models.DraftStatusActive, h.state(sd).Status)
	}
	d, err := h.store.GetDraft(h.ctx, notDue.draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusScheduled, d.Status)

	// Active drafts stay active after an autopick, so every sweep must reach
	// past the first page.
	now := t0
	for sweep := 1; sweep <= 3; sweep++ {
		now = now.Add(time.Hour)
		h.clock.Advance(time.Hour)
		actions, err := h.orch.Tick(h.ctx, now)
		require.NoError(t, err)
		assert.Len(t, actions, len(drafts), "sweep %d", sweep)
		for _, sd := range drafts {
			assert.Len(t, h.picksOf(sd), sweep)
		}
	}
}

func TestStartDueDrafts(t *testing.T) {
	h := newHarness(t)
	due := h.create(draftSetup{teams: []string{"A", "B"}, scheduledAt: t0.Add(-time.Minute)})
	exact := h.create(draftSetup{teams: []string{"A", "B"}, scheduledAt: t0})
	later := h.create(draftSetup{teams: []string{"A", "B"}, scheduledAt: t0.Add(time.Minute)})

	actions, err := h.orch.StartDueDrafts(h.ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, []ActionKind{ActionStarted, ActionStarted}, actionKinds(actions))

	assert.Equal(t, models.DraftStatusActive, h.state(due).Status)
	assert.Equal(t, models.DraftStatusActive, h.state(exact).Status)
	d, err := h.store.GetDraft(h.ctx, later.draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusScheduled, d.Status)

	actions, err = h.orch.StartDueDrafts(h.ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPauseAndResumeKeepRemainingTime(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 1, timePerPickSec: 60})
	h.start(sd)

	paused, err := h.orch.Pause(h.ctx, sd.draft.ID, t0.Add(20*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPaused, paused.Status)
	assert.Equal(t, 40*time.Second, paused.RemainingOnPause)

	_, err = h.orch.Pause(h.ctx, sd.draft.ID, t0.Add(21*time.Second))
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)

	_, err = h.submit(sd, "A", sd.pool[0])
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)

	actions, err := h.orch.Tick(h.ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, actions, "paused drafts are not swept")

	resumeAt := t0.Add(10 * time.Minute)
	resumed, err := h.orch.Resume(h.ctx, sd.draft.ID, resumeAt)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusActive, resumed.Status)
	assert.Equal(t, resumeAt.Add(40*time.Second), resumed.Deadline)
	assert.Zero(t, resumed.RemainingOnPause)

	_, err = h.orch.Resume(h.ctx, sd.draft.ID, resumeAt)
	assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)

	assert.Contains(t, h.outboxTypes(), events.TypeDraftPaused)
	assert.Contains(t, h.outboxTypes(), events.TypeDraftResumed)
}

func TestCancel(t *testing.T) {
	t.Run("scheduled", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A", "B"}})

		d, err := h.orch.Cancel(h.ctx, sd.draft.ID, t0)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusCanceled, d.Status)

		d, err = h.orch.Cancel(h.ctx, sd.draft.ID, t0)
		require.NoError(t, err, "canceling twice is a no-op")
		assert.Equal(t, models.DraftStatusCanceled, d.Status)

		res, err := h.orch.Start(h.ctx, sd.draft.ID, t0)
		require.NoError(t, err)
		assert.False(t, res.Started)
		assert.Equal(t, models.DraftStatusCanceled, res.Status)
	})

	t.Run("active", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A", "B"}, timePerPickSec: 60})
		h.start(sd)

		_, err := h.orch.Cancel(h.ctx, sd.draft.ID, t0.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusCanceled, h.state(sd).Status)

		actions, err := h.orch.Tick(h.ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, actions)

		_, err = h.submit(sd, "A", sd.pool[0])
		assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)
	})

	t.Run("complete", func(t *testing.T) {
		h := newHarness(t)
		sd := h.create(draftSetup{teams: []string{"A"}, rounds: 1})
		h.start(sd)
		h.mustSubmit(sd, "A", sd.pool[0])

		_, err := h.orch.Cancel(h.ctx, sd.draft.ID, t0)
		assert.ErrorIs(t, err, drafterr.ErrDraftNotActive)
	})
}

func TestPoolExhaustedHaltsDraft(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 2, timePerPickSec: 60, poolSize: 3})
	h.start(sd)

	h.mustSubmit(sd, "A", sd.pool[0])
	h.mustSubmit(sd, "B", sd.pool[1])
	h.mustSubmit(sd, "B", sd.pool[2])

	st := h.state(sd)
	require.Equal(t, 4, st.CurrentPick)

	actions, err := h.orch.Tick(h.ctx, st.Deadline.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionHalted, actions[0].Kind)
	assert.Equal(t, 4, actions[0].OverallPick)

	st = h.state(sd)
	assert.Equal(t, models.DraftStatusPaused, st.Status)
	assert.Equal(t, 4, st.CurrentPick, "the slot is never skipped")
	assert.Len(t, h.picksOf(sd), 3)
	assert.Contains(t, h.outboxTypes(), events.TypeDraftHalted)
}

func TestBotsPickWithoutWaiting(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, bots: map[string]bool{"B": true}, rounds: 2, timePerPickSec: 60})
	h.start(sd)

	actions, err := h.orch.Tick(h.ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, actions, "humans keep their full clock")

	h.mustSubmit(sd, "A", sd.pool[0])

	actions, err = h.orch.Tick(h.ctx, t0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionAutopicked, actions[0].Kind)
	assert.Equal(t, sd.id("B"), *actions[0].ParticipantID)

	// Snake: B picks twice in a row.
	actions, err = h.orch.Tick(h.ctx, t0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, 3, actions[0].OverallPick)
	assert.Equal(t, sd.id("A"), h.state(sd).OnClockParticipantID)
}

func TestAutopickPrefersUnfilledPositions(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, rounds: 2, timePerPickSec: 60})
	h.start(sd)

	// Pool positions cycle QB, RB, WR, TE by rank. A takes a QB.
	h.mustSubmit(sd, "A", sd.pool[4])
	h.mustSubmit(sd, "B", sd.pool[1])
	h.mustSubmit(sd, "B", sd.pool[2])

	// The rank 1 QB is left, but A has none of the TE at rank 4.
	st := h.state(sd)
	actions, err := h.orch.Tick(h.ctx, st.Deadline.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, sd.pool[3].ID, *actions[0].PlayerID)
}
