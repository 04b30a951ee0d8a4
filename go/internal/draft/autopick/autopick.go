// Package autopick chooses a player for a participant whose clock ran out.
package autopick

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// Ranker scores player quality. Lower is better.
type Ranker interface {
	Rank(p models.Player) int
}

// RankFunc adapts a function to Ranker.
type RankFunc func(p models.Player) int

func (f RankFunc) Rank(p models.Player) int { return f(p) }

// StaticRanker uses the pool's own rank.
type StaticRanker struct{}

func (StaticRanker) Rank(p models.Player) int { return p.Rank }

// Selector picks the best available player for a participant's needs.
type Selector struct {
	ranker Ranker
}

// NewSelector returns a Selector; a nil ranker falls back to StaticRanker.
func NewSelector(r Ranker) *Selector {
	if r == nil {
		r = StaticRanker{}
	}
	return &Selector{ranker: r}
}

// Input is everything Select looks at.
type Input struct {
	Pool            []models.Player
	Taken           map[uuid.UUID]bool
	FilledPositions map[string]int
	PositionLimits  map[string]int
}

// Select orders eligible players by: positions the participant has none of,
// then positions still under their limit, then positions at or over their
// limit; within a tier by rank, then by player id.
func (s *Selector) Select(in Input) (models.Player, error) {
	type candidate struct {
		player models.Player
		tier   int
		rank   int
	}

	var cands []candidate
	for _, p := range in.Pool {
		if in.Taken[p.ID] {
			continue
		}
		cands = append(cands, candidate{
			player: p,
			tier:   tierFor(p.Position, in.FilledPositions, in.PositionLimits),
			rank:   s.ranker.Rank(p),
		})
	}
	if len(cands) == 0 {
		return models.Player{}, fmt.Errorf("%w: %d players in pool, all taken", drafterr.ErrPoolExhausted, len(in.Pool))
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return bytes.Compare(a.player.ID[:], b.player.ID[:]) < 0
	})
	return cands[0].player, nil
}

func tierFor(position string, filled, limits map[string]int) int {
	n := filled[position]
	if limit, ok := limits[position]; ok && limit > 0 && n >= limit {
		return 2
	}
	if n == 0 {
		return 0
	}
	return 1
}
