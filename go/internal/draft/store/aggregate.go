package store

import (
	"fmt"
	"time"

	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Aggregate is everything stored for one draft. The embedded backends keep
// one aggregate per draft and apply the conditional-write rules below inside
// their own critical section.
type Aggregate struct {
	Draft        models.Draft         `json:"draft"`
	Participants []models.Participant `json:"participants"`
	Pool         []models.Player      `json:"pool"`
	Schedule     []models.PickSlot    `json:"schedule,omitempty"`
	State        *models.DraftState   `json:"state,omitempty"`
	Picks        []models.DraftPick   `json:"picks,omitempty"`
}

// NewAggregate validates participants and pool against the draft.
func NewAggregate(draft models.Draft, participants []models.Participant, pool []models.Player) (*Aggregate, error) {
	ps := make([]models.Participant, len(participants))
	for i, p := range participants {
		if p.DraftID != draft.ID {
			return nil, fmt.Errorf("participant %s belongs to draft %s", p.ID, p.DraftID)
		}
		p.FilledPositions = copyCounts(p.FilledPositions)
		ps[i] = p
	}
	return &Aggregate{
		Draft:        draft,
		Participants: ps,
		Pool:         append([]models.Player(nil), pool...),
	}, nil
}

// ApplyActivate is the scheduled to active transition.
func (a *Aggregate) ApplyActivate(p ActivateParams) error {
	if a.Draft.Status != models.DraftStatusScheduled {
		return ErrStatusConflict
	}
	started := p.StartedAt
	a.Draft.Status = models.DraftStatusActive
	a.Draft.StartedAt = &started
	a.Draft.UpdatedAt = started
	a.Schedule = append([]models.PickSlot(nil), p.Schedule...)
	st := p.State
	a.State = &st
	return nil
}

// ApplyCommit enforces the pick uniqueness keys and the version check, then
// records the pick.
func (a *Aggregate) ApplyCommit(p CommitParams) error {
	for _, existing := range a.Picks {
		if existing.IdempotencyToken == p.Pick.IdempotencyToken {
			return ErrDuplicateToken
		}
	}
	for _, existing := range a.Picks {
		if existing.OverallPick == p.Pick.OverallPick {
			return ErrDuplicateOverall
		}
		if existing.PlayerID == p.Pick.PlayerID {
			return ErrDuplicatePlayer
		}
	}
	if a.State == nil || a.State.Status != models.DraftStatusActive || a.State.Version != p.ExpectedVersion {
		return ErrVersionConflict
	}

	a.Picks = append(a.Picks, p.Pick)
	next := p.Next
	a.State = &next
	a.Draft.Status = next.Status
	a.Draft.UpdatedAt = p.Pick.PickedAt
	if next.Status == models.DraftStatusComplete {
		at := p.Pick.PickedAt
		a.Draft.CompletedAt = &at
	}
	for i := range a.Participants {
		if a.Participants[i].ID != p.Pick.ParticipantID {
			continue
		}
		if a.Participants[i].FilledPositions == nil {
			a.Participants[i].FilledPositions = make(map[string]int)
		}
		if p.Position != "" {
			a.Participants[i].FilledPositions[p.Position]++
		}
	}
	return nil
}

// ApplyTransition replaces the state for pause, resume or cancel.
func (a *Aggregate) ApplyTransition(p TransitionParams) error {
	if a.State == nil || a.State.Version != p.ExpectedVersion {
		return ErrVersionConflict
	}
	if a.State.Status.Terminal() {
		return ErrStatusConflict
	}
	next := p.Next
	a.State = &next
	a.Draft.Status = next.Status
	a.Draft.UpdatedAt = next.UpdatedAt
	return nil
}

// ApplyCancelScheduled cancels a draft that has no state yet.
func (a *Aggregate) ApplyCancelScheduled(at time.Time) error {
	if a.Draft.Status != models.DraftStatusScheduled {
		return ErrStatusConflict
	}
	a.Draft.Status = models.DraftStatusCanceled
	a.Draft.UpdatedAt = at
	return nil
}

// PickByToken looks up a committed pick.
func (a *Aggregate) PickByToken(token string) (*models.DraftPick, bool) {
	for i := range a.Picks {
		if a.Picks[i].IdempotencyToken == token {
			p := a.Picks[i]
			return &p, true
		}
	}
	return nil, false
}

// ParticipantsCopy returns participants with their need maps copied.
func (a *Aggregate) ParticipantsCopy() []models.Participant {
	out := make([]models.Participant, len(a.Participants))
	for i, p := range a.Participants {
		p.FilledPositions = copyCounts(p.FilledPositions)
		out[i] = p
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
