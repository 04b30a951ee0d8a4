package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/events"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/memory"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/storetest"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	events []models.OutboxEvent
}

func (s *fakeSource) add(evs ...models.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evs...)
}

func (s *fakeSource) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutboxEvent
	for _, ev := range s.events {
		if ev.SentAt == nil {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			cp := ev
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeSource) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].SentAt = &at
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeSource) CountPending(ctx context.Context) (int, error) {
	evs, _ := s.FetchUnsentOutbox(ctx, 0)
	return len(evs), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.OutboxEvent
	failFor   map[uuid.UUID]int // remaining failures per event
}

func (p *fakePublisher) Publish(ctx context.Context, ev models.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.failFor[ev.ID]; n > 0 {
		p.failFor[ev.ID] = n - 1
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.published))
	for i, ev := range p.published {
		out[i] = ev.EventType
	}
	return out
}

func testEvent(t *testing.T, draftID uuid.UUID, typ string, at time.Time) models.OutboxEvent {
	t.Helper()
	ev, err := events.New(draftID, typ, map[string]string{"draft_id": draftID.String()}, at)
	require.NoError(t, err)
	return ev
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(src Source, pub EventPublisher, clk clockwork.Clock) *Worker {
	return NewWorker(src, pub, Config{PollInterval: time.Hour, BatchSize: 2, MaxRetries: 2}, quietLogger(), clk)
}

func TestProcessOutboxPublishesInOrderAndMarksSent(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC))
	draftID := uuid.New()
	src := &fakeSource{}
	src.add(
		testEvent(t, draftID, events.TypeDraftStarted, clk.Now()),
		testEvent(t, draftID, events.TypePickStarted, clk.Now()),
		testEvent(t, draftID, events.TypePickMade, clk.Now()),
	)
	pub := &fakePublisher{}
	w := newTestWorker(src, pub, clk)

	n, err := w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "batch size bounds one pass")

	n, err = w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{events.TypeDraftStarted, events.TypePickStarted, events.TypePickMade}, pub.types())
	processed, last := w.Stats()
	assert.EqualValues(t, 3, processed)
	assert.True(t, last.Equal(clk.Now()), "last event time %s", last)
}

func TestProcessOutboxStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	draftID := uuid.New()
	first := testEvent(t, draftID, events.TypePickMade, time.Now())
	second := testEvent(t, draftID, events.TypePickStarted, time.Now())
	src := &fakeSource{}
	src.add(first, second)
	metrics := NewCounterMetrics()
	pub := &fakePublisher{failFor: map[uuid.UUID]int{first.ID: 10}}
	w := newTestWorker(src, pub, clockwork.NewFakeClock()).WithMetrics(metrics)

	n, err := w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.types(), "later events must not overtake a failed one")

	pending, err := src.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.Failed[events.TypePickMade])
	assert.EqualValues(t, 2, snap.Retries)
}

func TestPublishWithRetryRecovers(t *testing.T) {
	ctx := context.Background()
	ev := testEvent(t, uuid.New(), events.TypePickMade, time.Now())
	src := &fakeSource{}
	src.add(ev)
	pub := &fakePublisher{failFor: map[uuid.UUID]int{ev.ID: 2}}
	w := newTestWorker(src, pub, clockwork.NewFakeClock())

	n, err := w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events.TypePickMade}, pub.types())
}

func TestPublishByID(t *testing.T) {
	ctx := context.Background()
	ev := testEvent(t, uuid.New(), events.TypeDraftPaused, time.Now())
	src := &fakeSource{}
	src.add(ev)
	pub := &fakePublisher{}
	w := newTestWorker(src, pub, clockwork.NewFakeClock())

	require.NoError(t, w.PublishByID(ctx, ev.ID))
	require.NoError(t, w.PublishByID(ctx, ev.ID), "already sent is a no-op")
	require.NoError(t, w.PublishByID(ctx, uuid.New()), "unknown id is a no-op")
	assert.Len(t, pub.types(), 1)
}

func TestWorkerRelaysMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	start := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
	fx := storetest.NewFixture(start)
	require.NoError(t, st.CreateDraft(ctx, fx.Draft, fx.Participants, fx.Pool))
	require.NoError(t, st.CancelScheduled(ctx, fx.Draft.ID, start, []models.OutboxEvent{
		testEvent(t, fx.Draft.ID, events.TypeDraftCanceled, start),
	}))

	pub := &fakePublisher{}
	w := newTestWorker(st, pub, clockwork.NewFakeClockAt(start))
	n, err := w.ProcessOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events.TypeDraftCanceled}, pub.types())

	unsent, err := st.FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)
}

func TestEnvelopeAndSubject(t *testing.T) {
	draftID := uuid.MustParse("0b9f5c9e-34a6-4f3e-9a71-2b1a0c6c1d11")
	at := time.Date(2026, 9, 5, 18, 0, 0, 0, time.UTC)
	ev := models.OutboxEvent{ID: uuid.New(), DraftID: draftID, EventType: events.TypePickMade, CreatedAt: at}

	env := NewEnvelope(ev)
	assert.Equal(t, ev.ID.String(), env.EventID)
	assert.Equal(t, at, env.Timestamp)
	assert.JSONEq(t, `{}`, string(env.Payload))

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"eventType":"PickMade"`)

	assert.Equal(t, "draft.events.0b9f5c9e-34a6-4f3e-9a71-2b1a0c6c1d11.PickMade",
		Subject(DefaultSubjectPrefix, draftID, events.TypePickMade))
}

type fakeNotifier struct {
	ch     chan *pq.Notification
	closed chan struct{}
	once   sync.Once
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan *pq.Notification, 4), closed: make(chan struct{})}
}

func (n *fakeNotifier) NotificationChannel() <-chan *pq.Notification { return n.ch }
func (n *fakeNotifier) Ping() error                                  { return nil }
func (n *fakeNotifier) Close() error {
	n.once.Do(func() { close(n.closed) })
	return nil
}

func TestListenerPublishesOnNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{}
	pub := &fakePublisher{}
	w := newTestWorker(src, pub, clockwork.NewRealClock())
	notifier := newFakeNotifier()
	l := NewListenerWithNotifier(notifier, w, ListenerConfig{
		NotifyChannel:    "draft_outbox_events",
		FallbackInterval: time.Hour,
		PingInterval:     time.Hour,
	}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	ev := testEvent(t, uuid.New(), events.TypePickMade, time.Now())
	src.add(ev)
	notifier.ch <- &pq.Notification{Channel: "draft_outbox_events", Extra: ev.ID.String()}

	require.Eventually(t, func() bool { return len(pub.types()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// A reconnect (nil notification) triggers a catch-up poll.
	missed := testEvent(t, uuid.New(), events.TypePickStarted, time.Now())
	src.add(missed)
	notifier.ch <- nil
	require.Eventually(t, func() bool { return len(pub.types()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	select {
	case <-notifier.closed:
	default:
		t.Fatal("listener did not close its notifier")
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	src := &fakeSource{}
	src.add(testEvent(t, uuid.New(), events.TypePickMade, clk.Now()))
	w := newTestWorker(src, &fakePublisher{}, clk)

	connected := true
	h := NewRelayHealthChecker(w, src, func() bool { return connected }, time.Minute)

	status := h.Check(ctx)
	assert.False(t, status.Healthy, "worker is not running")
	assert.Equal(t, 1, status.PendingEvents)
	assert.Contains(t, status.Errors, "worker not active")

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })
	require.Eventually(t, func() bool {
		n, _ := src.CountPending(ctx)
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)

	status = h.Check(ctx)
	assert.True(t, status.Healthy, status.Errors)
	assert.EqualValues(t, 1, status.EventsProcessed)

	connected = false
	status = h.Check(ctx)
	assert.False(t, status.Healthy)
	assert.False(t, status.BusConnected)

	out := NewPrometheusExporter(h, NewCounterMetrics()).Export(ctx)
	assert.Contains(t, out, "outbox_nats_connected 0")
	assert.Contains(t, out, "outbox_events_processed_total 1")
}
