package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSchedulerDrivesBotDraftToCompletion(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{
		teams:          []string{"A", "B", "C"},
		bots:           map[string]bool{"A": true, "B": true, "C": true},
		rounds:         3,
		timePerPickSec: 60,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.RunScheduler(ctx) }()

	// No tick ever fires on the fake clock; progress comes from wakeups alone.
	require.Eventually(t, func() bool {
		st, err := h.store.GetState(h.ctx, sd.draft.ID)
		return err == nil && st.Status == models.DraftStatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, h.picksOf(sd), 9)
}

func TestRunSchedulerSweepsOnTick(t *testing.T) {
	h := newHarness(t)
	sd := h.create(draftSetup{teams: []string{"A", "B"}, timePerPickSec: 60})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.orch.RunScheduler(ctx) }()

	require.Eventually(t, func() bool {
		st, err := h.store.GetState(h.ctx, sd.draft.ID)
		return err == nil && st.Status == models.DraftStatusActive
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.picksOf(sd))

	// Keep ticking until the clock is past the first deadline.
	require.Eventually(t, func() bool {
		h.clock.Advance(10 * time.Second)
		return len(h.picksOf(sd)) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWakeDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 10; i++ {
		h.orch.Wake()
	}
	assert.Len(t, h.orch.wakeCh, 1)
}

func TestAdvancedCountsProgress(t *testing.T) {
	actions := []Action{
		{Kind: ActionStarted},
		{Kind: ActionAutopicked},
		{Kind: ActionAdvancedElsewhere},
		{Kind: ActionSkippedInFlight},
		{Kind: ActionFailed},
	}
	assert.Equal(t, 2, advanced(actions))
}
