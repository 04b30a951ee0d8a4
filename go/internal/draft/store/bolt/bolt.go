// Package bolt provides a BoltDB-backed draft store for single-node
// deployments. bbolt serializes write transactions, so every conditional
// write runs its check and its update inside one Update call.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"go.etcd.io/bbolt"
)

var (
	draftBucket    = []byte("drafts")
	outboxBucket   = []byte("outbox")
	outboxIDBucket = []byte("outbox_ids")
)

// Store persists one JSON aggregate per draft plus an ordered outbox.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{draftBucket, outboxBucket, outboxIDBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) CreateDraft(ctx context.Context, draft models.Draft, participants []models.Participant, pool []models.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agg, err := store.NewAggregate(draft, participants, pool)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(draftBucket)
		if b.Get(draft.ID[:]) != nil {
			return store.ErrAlreadyExists
		}
		return putAggregate(b, agg)
	})
}

func (s *Store) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return &agg.Draft, nil
}

func (s *Store) ListDraftsByStatus(ctx context.Context, status models.DraftStatus, after *store.DraftCursor, limit int) ([]models.Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Draft
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(draftBucket).ForEach(func(_, v []byte) error {
			var agg store.Aggregate
			if err := json.Unmarshal(v, &agg); err != nil {
				return fmt.Errorf("decode draft: %w", err)
			}
			if agg.Draft.Status == status {
				out = append(out, agg.Draft)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return store.PageDrafts(out, after, limit), nil
}

func (s *Store) ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return agg.Participants, nil
}

func (s *Store) ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return agg.Pool, nil
}

func (s *Store) GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return agg.Schedule, nil
}

func (s *Store) GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if agg.State == nil {
		return nil, store.ErrNotFound
	}
	return agg.State, nil
}

func (s *Store) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return agg.Picks, nil
}

func (s *Store) GetPickByToken(ctx context.Context, draftID uuid.UUID, token string) (*models.DraftPick, error) {
	agg, err := s.view(ctx, draftID)
	if err != nil {
		return nil, err
	}
	p, ok := agg.PickByToken(token)
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ActivateDraft(ctx context.Context, p store.ActivateParams) error {
	return s.update(ctx, p.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyActivate(p)
	})
}

func (s *Store) CommitPick(ctx context.Context, p store.CommitParams) error {
	return s.update(ctx, p.Pick.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyCommit(p)
	})
}

func (s *Store) UpdateState(ctx context.Context, p store.TransitionParams) error {
	return s.update(ctx, p.Next.DraftID, p.Events, func(agg *store.Aggregate) error {
		return agg.ApplyTransition(p)
	})
}

func (s *Store) CancelScheduled(ctx context.Context, draftID uuid.UUID, at time.Time, events []models.OutboxEvent) error {
	return s.update(ctx, draftID, events, func(agg *store.Aggregate) error {
		return agg.ApplyCancelScheduled(at)
	})
}

func (s *Store) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.OutboxEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(outboxBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev models.OutboxEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode outbox event: %w", err)
			}
			if ev.SentAt != nil {
				continue
			}
			out = append(out, ev)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ev models.OutboxEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(outboxIDBucket).Get(id[:])
		if key == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(tx.Bucket(outboxBucket).Get(key), &ev)
	})
	if err != nil {
		return nil, err
	}
	if ev.SentAt != nil {
		return nil, store.ErrNotFound
	}
	return &ev, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := tx.Bucket(outboxIDBucket).Get(id[:])
		if key == nil {
			return store.ErrNotFound
		}
		b := tx.Bucket(outboxBucket)
		var ev models.OutboxEvent
		if err := json.Unmarshal(b.Get(key), &ev); err != nil {
			return fmt.Errorf("decode outbox event: %w", err)
		}
		sent := at
		ev.SentAt = &sent
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}
		return b.Put(key, data)
	})
}

func (s *Store) view(ctx context.Context, draftID uuid.UUID) (*store.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var agg store.Aggregate
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(draftBucket).Get(draftID[:])
		if v == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(v, &agg)
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// update loads the aggregate, applies fn and writes the aggregate together
// with the outbox rows. Returning an error from fn rolls everything back.
func (s *Store) update(ctx context.Context, draftID uuid.UUID, events []models.OutboxEvent, fn func(*store.Aggregate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(draftBucket)
		v := b.Get(draftID[:])
		if v == nil {
			return store.ErrNotFound
		}
		var agg store.Aggregate
		if err := json.Unmarshal(v, &agg); err != nil {
			return fmt.Errorf("decode draft: %w", err)
		}
		if err := fn(&agg); err != nil {
			return err
		}
		if err := putAggregate(b, &agg); err != nil {
			return err
		}
		return appendOutbox(tx, events)
	})
}

func putAggregate(b *bbolt.Bucket, agg *store.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return b.Put(agg.Draft.ID[:], data)
}

func appendOutbox(tx *bbolt.Tx, events []models.OutboxEvent) error {
	b := tx.Bucket(outboxBucket)
	ids := tx.Bucket(outboxIDBucket)
	for _, ev := range events {
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("outbox sequence: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		if err := ids.Put(ev.ID[:], key); err != nil {
			return err
		}
	}
	return nil
}
