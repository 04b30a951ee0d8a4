package draftrpc

import (
	"time"

	"github.com/kpm34/cfbdraft/go/internal/models"
)

type Participant struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

type CreateDraftRequest struct {
	ID             string          `json:"id,omitempty"`
	LeagueID       string          `json:"league_id"`
	Rounds         int             `json:"rounds"`
	OrderMode      string          `json:"order_mode"`
	TimePerPickSec int             `json:"time_per_pick_sec"`
	PositionLimits map[string]int  `json:"position_limits,omitempty"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	Participants   []Participant   `json:"participants"`
	Pool           []models.Player `json:"pool"`
}

type CreateDraftResponse struct {
	Draft models.Draft `json:"draft"`
}

type GetDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type GetDraftResponse struct {
	Draft        models.Draft         `json:"draft"`
	State        *models.DraftState   `json:"state,omitempty"`
	Participants []models.Participant `json:"participants"`
	Schedule     []models.PickSlot    `json:"schedule,omitempty"`
}

type GetDraftStateRequest struct {
	DraftID string `json:"draft_id"`
}

type GetDraftStateResponse struct {
	State models.DraftState `json:"state"`
	// Remaining is the time left on the clock at the server's now.
	RemainingMs int64 `json:"remaining_ms"`
}

type StartDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type StartDraftResponse struct {
	DraftID string             `json:"draft_id"`
	Status  models.DraftStatus `json:"status"`
	Started bool               `json:"started"`
	State   *models.DraftState `json:"state,omitempty"`
}

type PauseDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type PauseDraftResponse struct {
	State models.DraftState `json:"state"`
}

type ResumeDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type ResumeDraftResponse struct {
	State models.DraftState `json:"state"`
}

type CancelDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type CancelDraftResponse struct {
	Draft models.Draft `json:"draft"`
}

type ListPicksRequest struct {
	DraftID string `json:"draft_id"`
}

type ListPicksResponse struct {
	Picks []models.DraftPick `json:"picks"`
}

type ListAvailablePlayersRequest struct {
	DraftID string `json:"draft_id"`
}

type ListAvailablePlayersResponse struct {
	Players []models.Player `json:"players"`
}

// SubmitPickRequest is sent with the Idempotency-Key header.
type SubmitPickRequest struct {
	DraftID       string `json:"draft_id"`
	ParticipantID string `json:"participant_id"`
	PlayerID      string `json:"player_id"`
}

type SubmitPickResponse struct {
	Pick     models.DraftPick  `json:"pick"`
	State    models.DraftState `json:"state"`
	Replayed bool              `json:"replayed"`
}
