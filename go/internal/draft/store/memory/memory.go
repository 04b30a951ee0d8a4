// Package memory is an in-process draft store. One mutex guards every
// aggregate, which makes each conditional write trivially atomic.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Store keeps every draft aggregate in memory.
type Store struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]*store.Aggregate
	outbox []models.OutboxEvent
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{drafts: make(map[uuid.UUID]*store.Aggregate)}
}

func (s *Store) CreateDraft(ctx context.Context, draft models.Draft, participants []models.Participant, pool []models.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agg, err := store.NewAggregate(draft, participants, pool)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drafts[draft.ID]; exists {
		return store.ErrAlreadyExists
	}
	s.drafts[draft.ID] = agg
	return nil
}

func (s *Store) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := agg.Draft
	return &d, nil
}

func (s *Store) ListDraftsByStatus(ctx context.Context, status models.DraftStatus, after *store.DraftCursor, limit int) ([]models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Draft
	for _, agg := range s.drafts {
		if agg.Draft.Status == status {
			out = append(out, agg.Draft)
		}
	}
	return store.PageDrafts(out, after, limit), nil
}

func (s *Store) ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return agg.ParticipantsCopy(), nil
}

func (s *Store) ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]models.Player(nil), agg.Pool...), nil
}

func (s *Store) GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]models.PickSlot(nil), agg.Schedule...), nil
}

func (s *Store) GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok || agg.State == nil {
		return nil, store.ErrNotFound
	}
	st := *agg.State
	return &st, nil
}

func (s *Store) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]models.DraftPick(nil), agg.Picks...), nil
}

func (s *Store) GetPickByToken(ctx context.Context, draftID uuid.UUID, token string) (*models.DraftPick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.drafts[draftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := agg.PickByToken(token)
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ActivateDraft(ctx context.Context, p store.ActivateParams) error {
	return s.mutate(ctx, p.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyActivate(p)
	})
}

func (s *Store) CommitPick(ctx context.Context, p store.CommitParams) error {
	return s.mutate(ctx, p.Pick.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyCommit(p)
	})
}

func (s *Store) UpdateState(ctx context.Context, p store.TransitionParams) error {
	return s.mutate(ctx, p.Next.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyTransition(p)
	})
}

func (s *Store) CancelScheduled(ctx context.Context, draftID uuid.UUID, at time.Time, events []models.OutboxEvent) error {
	return s.mutate(ctx, draftID, events, func(agg *store.Aggregate) error {
		return agg.ApplyCancelScheduled(at)
	})
}

// mutate applies fn and appends events under the write lock. fn must not
// modify the aggregate when it returns an error.
func (s *Store) mutate(ctx context.Context, draftID uuid.UUID, events []models.OutboxEvent, fn func(*store.Aggregate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.drafts[draftID]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(agg); err != nil {
		return err
	}
	s.outbox = append(s.outbox, events...)
	return nil
}

func (s *Store) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.outbox)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]models.OutboxEvent, n)
	copy(out, s.outbox[:n])
	return out, nil
}

func (s *Store) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.outbox {
		if ev.ID == id {
			e := ev
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

// MarkOutboxSent drops the event; the outbox only holds unsent events. An id
// that is not held was already sent, so marking it again is a no-op.
func (s *Store) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox = slices.Delete(s.outbox, i, i+1)
			return nil
		}
	}
	return nil
}
