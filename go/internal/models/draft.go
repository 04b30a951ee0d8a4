package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderMode defines how the pick order runs across rounds.
type OrderMode string

const (
	OrderModeSnake  OrderMode = "snake"
	OrderModeLinear OrderMode = "linear"
)

// DraftStatus defines the status of a draft.
type DraftStatus string

const (
	DraftStatusScheduled DraftStatus = "scheduled"
	DraftStatusActive    DraftStatus = "active"
	DraftStatusPaused    DraftStatus = "paused"
	DraftStatusComplete  DraftStatus = "complete"
	DraftStatusCanceled  DraftStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s DraftStatus) Terminal() bool {
	return s == DraftStatusComplete || s == DraftStatusCanceled
}

// DraftConfig holds the settings fixed at draft creation.
type DraftConfig struct {
	Rounds           int            `json:"rounds" yaml:"rounds"`
	OrderMode        OrderMode      `json:"order_mode" yaml:"order_mode"`
	TimePerPickSec   int            `json:"time_per_pick_sec" yaml:"time_per_pick_sec"`
	ParticipantOrder []uuid.UUID    `json:"participant_order" yaml:"participant_order"`
	PositionLimits   map[string]int `json:"position_limits,omitempty" yaml:"position_limits,omitempty"`
}

// TeamCount is the number of participants in the draft order.
func (c DraftConfig) TeamCount() int {
	return len(c.ParticipantOrder)
}

// TotalPicks is rounds * teams.
func (c DraftConfig) TotalPicks() int {
	return c.Rounds * c.TeamCount()
}

// PickDuration converts TimePerPickSec. Zero means untimed.
func (c DraftConfig) PickDuration() time.Duration {
	return time.Duration(c.TimePerPickSec) * time.Second
}

// Draft represents a draft instance.
type Draft struct {
	ID          uuid.UUID   `json:"id"`
	LeagueID    uuid.UUID   `json:"league_id"`
	Status      DraftStatus `json:"status"`
	Config      DraftConfig `json:"config"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Participant is a drafting team.
type Participant struct {
	ID              uuid.UUID      `json:"id"`
	DraftID         uuid.UUID      `json:"draft_id"`
	DisplayName     string         `json:"display_name"`
	IsBot           bool           `json:"is_bot"`
	FilledPositions map[string]int `json:"filled_positions"`
}

// PickSlot is one entry of the materialized draft schedule.
type PickSlot struct {
	OverallPick   int       `json:"overall_pick"`
	Round         int       `json:"round"`
	PickInRound   int       `json:"pick_in_round"`
	ParticipantID uuid.UUID `json:"participant_id"`
}

// DraftState is the versioned record of where a draft currently is.
type DraftState struct {
	DraftID              uuid.UUID     `json:"draft_id"`
	Status               DraftStatus   `json:"status"`
	CurrentPick          int           `json:"current_pick"`
	CurrentRound         int           `json:"current_round"`
	OnClockParticipantID uuid.UUID     `json:"on_clock_participant_id"`
	PickStartedAt        time.Time     `json:"pick_started_at"`
	Deadline             time.Time     `json:"deadline"`
	RemainingOnPause     time.Duration `json:"remaining_on_pause,omitempty"`
	Version              int64         `json:"version"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Untimed reports whether the current pick has no deadline.
func (s DraftState) Untimed() bool {
	return s.Deadline.IsZero()
}
