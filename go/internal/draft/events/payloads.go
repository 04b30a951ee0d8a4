package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Event payload types shared by the engine, the outbox relay and the gateway.

const (
	TypePickStarted    = "PickStarted"
	TypePickMade       = "PickMade"
	TypeDraftStarted   = "DraftStarted"
	TypeDraftCompleted = "DraftCompleted"
	TypeDraftPaused    = "DraftPaused"
	TypeDraftResumed   = "DraftResumed"
	TypeDraftCanceled  = "DraftCanceled"
	TypeDraftHalted    = "DraftHalted"
)

// PickStartedPayload is the payload for a PickStarted event
type PickStartedPayload struct {
	ParticipantID  string     `json:"participant_id"`
	Round          int        `json:"round"`
	PickInRound    int        `json:"pick_in_round"`
	OverallPick    int        `json:"overall_pick"`
	StartedAt      time.Time  `json:"started_at"`
	TimeoutAt      *time.Time `json:"timeout_at,omitempty"`
	TimePerPickSec int        `json:"time_per_pick_sec"`
	Version        int64      `json:"version"`
}

// PickMadePayload is the payload for a PickMade event
type PickMadePayload struct {
	PickID        string    `json:"pick_id"`
	ParticipantID string    `json:"participant_id"`
	PlayerID      string    `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	Position      string    `json:"position"`
	Round         int       `json:"round"`
	PickInRound   int       `json:"pick_in_round"`
	OverallPick   int       `json:"overall_pick"`
	Autopick      bool      `json:"autopick"`
	MadeAt        time.Time `json:"made_at"`
}

// DraftStartedPayload is the payload for a DraftStarted event
type DraftStartedPayload struct {
	DraftID     string    `json:"draft_id"`
	OrderMode   string    `json:"order_mode"`
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftCompletedPayload is the payload for a DraftCompleted event
type DraftCompletedPayload struct {
	DraftID     string    `json:"draft_id"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftPausedPayload is the payload for a DraftPaused event
type DraftPausedPayload struct {
	DraftID      string    `json:"draft_id"`
	PausedAt     time.Time `json:"paused_at"`
	RemainingSec float64   `json:"remaining_sec"`
	Reason       string    `json:"reason,omitempty"`
}

// DraftResumedPayload is the payload for a DraftResumed event
type DraftResumedPayload struct {
	DraftID   string     `json:"draft_id"`
	ResumedAt time.Time  `json:"resumed_at"`
	TimeoutAt *time.Time `json:"timeout_at,omitempty"`
}

// DraftCanceledPayload is the payload for a DraftCanceled event
type DraftCanceledPayload struct {
	DraftID    string    `json:"draft_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

// DraftHaltedPayload is emitted when autopick finds nothing eligible.
type DraftHaltedPayload struct {
	DraftID     string    `json:"draft_id"`
	OverallPick int       `json:"overall_pick"`
	Reason      string    `json:"reason"`
	HaltedAt    time.Time `json:"halted_at"`
}

// New marshals payload into an outbox row.
func New(draftID uuid.UUID, eventType string, payload any, at time.Time) (models.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return models.OutboxEvent{
		ID:        uuid.New(),
		DraftID:   draftID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: at,
	}, nil
}

// PickStarted builds the event announcing who is on the clock.
func PickStarted(cfg models.DraftConfig, st models.DraftState, slot models.PickSlot) (models.OutboxEvent, error) {
	p := PickStartedPayload{
		ParticipantID:  slot.ParticipantID.String(),
		Round:          slot.Round,
		PickInRound:    slot.PickInRound,
		OverallPick:    slot.OverallPick,
		StartedAt:      st.PickStartedAt,
		TimePerPickSec: cfg.TimePerPickSec,
		Version:        st.Version,
	}
	if !st.Deadline.IsZero() {
		d := st.Deadline
		p.TimeoutAt = &d
	}
	return New(st.DraftID, TypePickStarted, p, st.PickStartedAt)
}
