package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/memory"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)

type draftSetup struct {
	teams          []string
	bots           map[string]bool
	rounds         int
	mode           models.OrderMode
	timePerPickSec int
	poolSize       int
	scheduledAt    time.Time
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *clockwork.FakeClock
	store *memory.Store
	picks *pick.App
	orch  *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, testConfig())
}

func newHarnessWith(t *testing.T, cfg Config) *harness {
	t.Helper()
	clk := clockwork.NewFakeClockAt(t0)
	st := memory.New()
	cache, err := order.NewCache(st, 16)
	require.NoError(t, err)
	picks := pick.NewApp(st, cache, clk, time.Second)
	return &harness{
		t:     t,
		ctx:   context.Background(),
		clock: clk,
		store: st,
		picks: picks,
		orch:  New(st, picks, nil, clk, cfg),
	}
}

func testConfig() Config {
	return Config{
		Parallelism:          4,
		BatchSize:            100,
		TickInterval:         time.Second,
		StoreTimeout:         time.Second,
		RetryMaxTries:        2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
}

// seededDraft is a created draft with participants addressable by name.
type seededDraft struct {
	draft  models.Draft
	byName map[string]uuid.UUID
	pool   []models.Player
}

func (s seededDraft) id(name string) uuid.UUID { return s.byName[name] }

func (h *harness) create(setup draftSetup) seededDraft {
	h.t.Helper()
	if setup.rounds == 0 {
		setup.rounds = 1
	}
	if setup.mode == "" {
		setup.mode = models.OrderModeSnake
	}
	if setup.scheduledAt.IsZero() {
		setup.scheduledAt = t0
	}
	if setup.poolSize == 0 {
		setup.poolSize = len(setup.teams) * setup.rounds * 2
	}

	draftID := uuid.New()
	sd := seededDraft{byName: map[string]uuid.UUID{}}
	var (
		participants []models.Participant
		orderIDs     []uuid.UUID
	)
	for _, name := range setup.teams {
		p := models.Participant{ID: uuid.New(), DraftID: draftID, DisplayName: name, IsBot: setup.bots[name], FilledPositions: map[string]int{}}
		participants = append(participants, p)
		orderIDs = append(orderIDs, p.ID)
		sd.byName[name] = p.ID
	}
	positions := []string{"QB", "RB", "WR", "TE"}
	for i := 0; i < setup.poolSize; i++ {
		sd.pool = append(sd.pool, models.Player{
			ID:       uuid.New(),
			FullName: fmt.Sprintf("Player %02d", i+1),
			Position: positions[i%len(positions)],
			Rank:     i + 1,
		})
	}
	sd.draft = models.Draft{
		ID:       draftID,
		LeagueID: uuid.New(),
		Status:   models.DraftStatusScheduled,
		Config: models.DraftConfig{
			Rounds:           setup.rounds,
			OrderMode:        setup.mode,
			TimePerPickSec:   setup.timePerPickSec,
			ParticipantOrder: orderIDs,
		},
		ScheduledAt: setup.scheduledAt,
		CreatedAt:   t0.Add(-time.Hour),
		UpdatedAt:   t0.Add(-time.Hour),
	}
	require.NoError(h.t, h.store.CreateDraft(h.ctx, sd.draft, participants, sd.pool))
	return sd
}

func (h *harness) start(sd seededDraft) *StartResult {
	h.t.Helper()
	res, err := h.orch.Start(h.ctx, sd.draft.ID, h.clock.Now())
	require.NoError(h.t, err)
	return res
}

func (h *harness) state(sd seededDraft) models.DraftState {
	h.t.Helper()
	st, err := h.store.GetState(h.ctx, sd.draft.ID)
	require.NoError(h.t, err)
	return *st
}

func (h *harness) picksOf(sd seededDraft) []models.DraftPick {
	h.t.Helper()
	picks, err := h.store.ListPicks(h.ctx, sd.draft.ID)
	require.NoError(h.t, err)
	return picks
}

// submit picks player for the named participant with a fresh token.
func (h *harness) submit(sd seededDraft, name string, player models.Player) (*pick.Result, error) {
	return h.orch.SubmitPick(h.ctx, sd.draft.ID, uuid.NewString(), sd.id(name), player.ID)
}

func (h *harness) mustSubmit(sd seededDraft, name string, player models.Player) *pick.Result {
	h.t.Helper()
	res, err := h.submit(sd, name, player)
	require.NoError(h.t, err, "%s picking %s", name, player.FullName)
	return res
}

func (h *harness) outboxTypes() []string {
	h.t.Helper()
	evs, err := h.store.FetchUnsentOutbox(h.ctx, 1000)
	require.NoError(h.t, err)
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventType
	}
	return out
}

func actionKinds(actions []Action) []ActionKind {
	out := make([]ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

// staleStateStore hands out one state with an older version, as if another
// writer committed between our read and the submit.
type staleStateStore struct {
	*memory.Store
	mu   sync.Mutex
	left int
}

func (s *staleStateStore) GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error) {
	st, err := s.Store.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left > 0 {
		s.left--
		st.Version--
	}
	return st, nil
}

// sweepBeforeSubmit runs sweep once before forwarding the first submission,
// so that submission loses the race for its slot.
type sweepBeforeSubmit struct {
	picks *pick.App
	sweep func()
	once  sync.Once
}

func (s *sweepBeforeSubmit) Submit(ctx context.Context, req pick.SubmitRequest) (*pick.Result, error) {
	s.once.Do(s.sweep)
	return s.picks.Submit(ctx, req)
}
