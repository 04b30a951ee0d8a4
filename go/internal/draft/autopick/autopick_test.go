package autopick

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func player(id string, pos string, rank int) models.Player {
	return models.Player{ID: uuid.MustParse(id), FullName: pos + " player", Position: pos, Rank: rank}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	qb1 := player("00000000-0000-0000-0000-000000000001", "QB", 1)
	rb5 := player("00000000-0000-0000-0000-000000000002", "RB", 5)
	wr5 := player("00000000-0000-0000-0000-000000000003", "WR", 5)
	wr9 := player("00000000-0000-0000-0000-000000000004", "WR", 9)
	pool := []models.Player{wr9, wr5, rb5, qb1}

	tests := []struct {
		name   string
		taken  []models.Player
		filled map[string]int
		limits map[string]int
		want   models.Player
	}{
		{
			name: "best rank when nothing filled",
			want: qb1,
		},
		{
			name:   "unmet position beats better rank",
			filled: map[string]int{"QB": 1},
			want:   rb5,
		},
		{
			name:   "all needs met falls back to rank",
			filled: map[string]int{"QB": 1, "RB": 2, "WR": 1},
			want:   qb1,
		},
		{
			name:   "position at limit ranks last",
			filled: map[string]int{"QB": 1, "RB": 1, "WR": 1},
			limits: map[string]int{"QB": 1},
			want:   rb5,
		},
		{
			name:   "taken players skipped",
			taken:  []models.Player{qb1, rb5},
			filled: map[string]int{"QB": 1},
			want:   wr5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			taken := make(map[uuid.UUID]bool)
			for _, p := range tt.taken {
				taken[p.ID] = true
			}
			got, err := NewSelector(nil).Select(Input{
				Pool:            pool,
				Taken:           taken,
				FilledPositions: tt.filled,
				PositionLimits:  tt.limits,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, got.ID)
		})
	}
}

func TestSelectTieOnRankUsesID(t *testing.T) {
	t.Parallel()

	low := player("00000000-0000-0000-0000-00000000000a", "WR", 3)
	high := player("00000000-0000-0000-0000-00000000000b", "WR", 3)

	got, err := NewSelector(nil).Select(Input{Pool: []models.Player{high, low}})
	require.NoError(t, err)
	assert.Equal(t, low.ID, got.ID)
}

func TestSelectCustomRanker(t *testing.T) {
	t.Parallel()

	a := player("00000000-0000-0000-0000-000000000001", "QB", 1)
	b := player("00000000-0000-0000-0000-000000000002", "QB", 2)
	reverse := RankFunc(func(p models.Player) int { return -p.Rank })

	got, err := NewSelector(reverse).Select(Input{Pool: []models.Player{a, b}})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestSelectPoolExhausted(t *testing.T) {
	t.Parallel()

	a := player("00000000-0000-0000-0000-000000000001", "QB", 1)
	_, err := NewSelector(nil).Select(Input{
		Pool:  []models.Player{a},
		Taken: map[uuid.UUID]bool{a.ID: true},
	})
	assert.ErrorIs(t, err, drafterr.ErrPoolExhausted)

	_, err = NewSelector(nil).Select(Input{})
	assert.ErrorIs(t, err, drafterr.ErrPoolExhausted)
}
