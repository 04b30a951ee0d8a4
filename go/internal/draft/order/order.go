// Package order resolves the fixed pick schedule of a draft.
package order

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Resolve materializes every slot of the draft. In snake mode even rounds run
// the base order in reverse; in linear mode every round repeats round 1.
// Overall pick numbers are contiguous from 1.
func Resolve(participantIDs []uuid.UUID, rounds int, mode models.OrderMode) ([]models.PickSlot, error) {
	n := len(participantIDs)
	if n == 0 {
		return nil, fmt.Errorf("%w: participant order is empty", drafterr.ErrInvalidConfiguration)
	}
	if rounds < 1 {
		return nil, fmt.Errorf("%w: rounds must be at least 1, got %d", drafterr.ErrInvalidConfiguration, rounds)
	}
	if mode != models.OrderModeSnake && mode != models.OrderModeLinear {
		return nil, fmt.Errorf("%w: unknown order mode %q", drafterr.ErrInvalidConfiguration, mode)
	}

	seen := make(map[uuid.UUID]struct{}, n)
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: participant %s appears twice", drafterr.ErrInvalidConfiguration, id)
		}
		seen[id] = struct{}{}
	}

	slots := make([]models.PickSlot, 0, n*rounds)
	for r := 1; r <= rounds; r++ {
		reverse := mode == models.OrderModeSnake && r%2 == 0
		for p := 1; p <= n; p++ {
			idx := p - 1
			if reverse {
				idx = n - p
			}
			slots = append(slots, models.PickSlot{
				OverallPick:   (r-1)*n + p,
				Round:         r,
				PickInRound:   p,
				ParticipantID: participantIDs[idx],
			})
		}
	}
	return slots, nil
}

// SlotFor returns the slot for an overall pick number, false past the end.
func SlotFor(slots []models.PickSlot, overall int) (models.PickSlot, bool) {
	if overall < 1 || overall > len(slots) {
		return models.PickSlot{}, false
	}
	return slots[overall-1], true
}
