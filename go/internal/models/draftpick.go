package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftPick represents a committed selection.
type DraftPick struct {
	ID               uuid.UUID `json:"id"`
	DraftID          uuid.UUID `json:"draft_id"`
	OverallPick      int       `json:"overall_pick"`
	Round            int       `json:"round"`
	PickInRound      int       `json:"pick_in_round"`
	ParticipantID    uuid.UUID `json:"participant_id"`
	PlayerID         uuid.UUID `json:"player_id"`
	PickedAt         time.Time `json:"picked_at"`
	Autopick         bool      `json:"autopick"`
	IdempotencyToken string    `json:"idempotency_token"`
}
