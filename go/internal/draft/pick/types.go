package pick

import (
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// SubmitRequest represents a request to commit a draft pick
type SubmitRequest struct {
	DraftID          uuid.UUID `json:"draft_id"`
	IdempotencyToken string    `json:"idempotency_token"`
	ParticipantID    uuid.UUID `json:"participant_id"`
	PlayerID         uuid.UUID `json:"player_id"`
	ExpectedVersion  int64     `json:"expected_version"`
	Autopick         bool      `json:"autopick"`
	// Now overrides the commit time; zero means the processor's clock.
	Now time.Time `json:"-"`
}

// Result is a committed or replayed pick together with the state after it.
type Result struct {
	Pick     models.DraftPick  `json:"pick"`
	State    models.DraftState `json:"state"`
	Replayed bool              `json:"replayed"`
}

// AvailablePlayer represents a player still selectable in a draft
type AvailablePlayer struct {
	models.Player
}
