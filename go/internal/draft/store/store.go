// Package store defines the draft state store: the single source of truth for
// drafts, their schedules, state records, committed picks and outbox events.
// Every mutation is a conditional write so concurrent writers cannot double
// advance a draft.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

var (
	ErrNotFound = fmt.Errorf("store: %w", drafterr.ErrNotFound)
	// ErrVersionConflict means the state version or status no longer matches.
	ErrVersionConflict = fmt.Errorf("store: version conflict: %w", drafterr.ErrStaleState)
	// ErrDuplicateOverall means another pick already owns this pick number.
	ErrDuplicateOverall = fmt.Errorf("store: overall pick already committed: %w", drafterr.ErrStaleState)
	// ErrDuplicatePlayer means the player was committed by another pick.
	ErrDuplicatePlayer = fmt.Errorf("store: %w", drafterr.ErrPlayerAlreadyTaken)
	// ErrDuplicateToken means a pick with the same idempotency token exists.
	ErrDuplicateToken = errors.New("store: idempotency token already used")
	// ErrStatusConflict means a lifecycle transition found an unexpected status.
	ErrStatusConflict = fmt.Errorf("store: status conflict: %w", drafterr.ErrStaleState)
	ErrAlreadyExists  = errors.New("store: draft already exists")
)

// ActivateParams starts a scheduled draft.
type ActivateParams struct {
	DraftID   uuid.UUID
	StartedAt time.Time
	Schedule  []models.PickSlot
	State     models.DraftState
	Events    []models.OutboxEvent
}

// CommitParams records one pick and moves the state forward.
type CommitParams struct {
	Pick            models.DraftPick
	Position        string
	ExpectedVersion int64
	Next            models.DraftState
	Events          []models.OutboxEvent
}

// TransitionParams moves an active or paused draft between lifecycle states.
type TransitionParams struct {
	ExpectedVersion int64
	Next            models.DraftState
	Events          []models.OutboxEvent
}

// Store is what the engine needs from persistence.
type Store interface {
	CreateDraft(ctx context.Context, draft models.Draft, participants []models.Participant, pool []models.Player) error
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error)
	// ListDraftsByStatus pages through drafts in (ScheduledAt, ID) order,
	// starting strictly after the cursor. A nil cursor starts at the top.
	ListDraftsByStatus(ctx context.Context, status models.DraftStatus, after *DraftCursor, limit int) ([]models.Draft, error)
	ListParticipants(ctx context.Context, draftID uuid.UUID) ([]models.Participant, error)
	ListPool(ctx context.Context, draftID uuid.UUID) ([]models.Player, error)
	GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error)
	GetState(ctx context.Context, draftID uuid.UUID) (*models.DraftState, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	GetPickByToken(ctx context.Context, draftID uuid.UUID, token string) (*models.DraftPick, error)

	// ActivateDraft writes schedule, initial state and status active in one
	// step. Fails with ErrStatusConflict unless the draft is scheduled.
	ActivateDraft(ctx context.Context, p ActivateParams) error
	// CommitPick inserts the pick and replaces the state only if the stored
	// version equals ExpectedVersion and the draft is active.
	CommitPick(ctx context.Context, p CommitParams) error
	// UpdateState replaces the state only if the stored version matches.
	UpdateState(ctx context.Context, p TransitionParams) error
	// CancelScheduled cancels a draft that never started.
	CancelScheduled(ctx context.Context, draftID uuid.UUID, at time.Time, events []models.OutboxEvent) error

	FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DraftCursor is a keyset position in the (ScheduledAt, ID) draft order.
type DraftCursor struct {
	ScheduledAt time.Time
	ID          uuid.UUID
}

// CursorAfter returns the cursor that resumes listing after d.
func CursorAfter(d models.Draft) *DraftCursor {
	return &DraftCursor{ScheduledAt: d.ScheduledAt, ID: d.ID}
}

// Less reports whether d sorts strictly after the cursor.
func (c DraftCursor) Less(d models.Draft) bool {
	if !c.ScheduledAt.Equal(d.ScheduledAt) {
		return c.ScheduledAt.Before(d.ScheduledAt)
	}
	return bytes.Compare(c.ID[:], d.ID[:]) < 0
}

// PageDrafts orders drafts by (ScheduledAt, ID), drops everything up to and
// including after, and keeps at most limit. It is the in-process version of
// the postgres keyset query.
func PageDrafts(drafts []models.Draft, after *DraftCursor, limit int) []models.Draft {
	sort.Slice(drafts, func(i, j int) bool {
		return DraftCursor{ScheduledAt: drafts[i].ScheduledAt, ID: drafts[i].ID}.Less(drafts[j])
	})
	out := drafts[:0]
	for _, d := range drafts {
		if after == nil || after.Less(d) {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
