package draft

import (
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// ParticipantInput is one seat in a new draft, listed in draft order.
type ParticipantInput struct {
	ID          uuid.UUID `json:"id,omitempty" yaml:"id,omitempty"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	IsBot       bool      `json:"is_bot,omitempty" yaml:"is_bot,omitempty"`
}

// CreateDraftRequest represents a request to create a new draft
type CreateDraftRequest struct {
	ID             uuid.UUID          `json:"id,omitempty" yaml:"id,omitempty"`
	LeagueID       uuid.UUID          `json:"league_id" yaml:"league_id"`
	Rounds         int                `json:"rounds" yaml:"rounds"`
	OrderMode      models.OrderMode   `json:"order_mode" yaml:"order_mode"`
	TimePerPickSec int                `json:"time_per_pick_sec" yaml:"time_per_pick_sec"`
	PositionLimits map[string]int     `json:"position_limits,omitempty" yaml:"position_limits,omitempty"`
	ScheduledAt    time.Time          `json:"scheduled_at" yaml:"scheduled_at"`
	Participants   []ParticipantInput `json:"participants" yaml:"participants"`
	Pool           []models.Player    `json:"pool" yaml:"pool"`
}

// Snapshot is a draft together with everything a client needs to render it.
type Snapshot struct {
	Draft        models.Draft         `json:"draft"`
	State        *models.DraftState   `json:"state,omitempty"`
	Participants []models.Participant `json:"participants"`
	Schedule     []models.PickSlot    `json:"schedule,omitempty"`
}
