package models

import (
	"github.com/google/uuid"
)

// Player is an entry in a draft's selectable pool.
type Player struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	FullName string    `json:"full_name" yaml:"full_name"`
	Position string    `json:"position" yaml:"position"`
	Team     string    `json:"team,omitempty" yaml:"team,omitempty"`
	// Rank is the static quality rank, 1 is best.
	Rank int `json:"rank" yaml:"rank"`
}
