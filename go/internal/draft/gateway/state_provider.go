package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/clock"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"golang.org/x/sync/singleflight"
)

// recentPickCount bounds the pick history sent in a snapshot.
const recentPickCount = 10

// StateProvider builds the snapshot a client renders before live events arrive.
type StateProvider interface {
	Snapshot(ctx context.Context, draftID uuid.UUID) (*Snapshot, error)
}

// DraftReader is the part of the draft API the gateway reads.
// *draftrpc.DraftServiceClient implements it.
type DraftReader interface {
	GetDraft(ctx context.Context, req *connect.Request[draftrpc.GetDraftRequest]) (*connect.Response[draftrpc.GetDraftResponse], error)
	ListPicks(ctx context.Context, req *connect.Request[draftrpc.ListPicksRequest]) (*connect.Response[draftrpc.ListPicksResponse], error)
}

// Snapshot is the complete client view of a draft at ServerTime.
type Snapshot struct {
	DraftID         string             `json:"draft_id"`
	Status          models.DraftStatus `json:"status"`
	OrderMode       models.OrderMode   `json:"order_mode"`
	Version         int64              `json:"version"`
	CurrentPick     *CurrentPickInfo   `json:"current_pick,omitempty"`
	RecentPicks     []RecentPickInfo   `json:"recent_picks"`
	TimeRemainingMs int64              `json:"time_remaining_ms"`
	TotalPicks      int                `json:"total_picks"`
	CompletedPicks  int                `json:"completed_picks"`
	ServerTime      time.Time          `json:"server_time"`

	remainingOnPause time.Duration
}

// CurrentPickInfo represents the current pick on the clock
type CurrentPickInfo struct {
	ParticipantID  string     `json:"participant_id"`
	DisplayName    string     `json:"display_name"`
	IsBot          bool       `json:"is_bot"`
	Round          int        `json:"round"`
	PickInRound    int        `json:"pick_in_round"`
	OverallPick    int        `json:"overall_pick"`
	StartedAt      time.Time  `json:"started_at"`
	TimeoutAt      *time.Time `json:"timeout_at,omitempty"`
	TimePerPickSec int        `json:"time_per_pick_sec"`
}

// RecentPickInfo represents a recently made pick
type RecentPickInfo struct {
	PickID        string    `json:"pick_id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	PlayerID      string    `json:"player_id"`
	Round         int       `json:"round"`
	PickInRound   int       `json:"pick_in_round"`
	OverallPick   int       `json:"overall_pick"`
	Autopick      bool      `json:"autopick"`
	MadeAt        time.Time `json:"made_at"`
}

// RPCStateProvider reads snapshots from the draft API and caches them until
// an event for the draft arrives.
type RPCStateProvider struct {
	reader DraftReader
	clock  clockwork.Clock
	cache  *lru.Cache
	group  singleflight.Group
}

func NewRPCStateProvider(reader DraftReader, clk clockwork.Clock, cacheSize int) (*RPCStateProvider, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("lru new snapshot cache: %w", err)
	}
	return &RPCStateProvider{reader: reader, clock: clk, cache: c}, nil
}

// Invalidate drops the cached snapshot for draftID.
func (p *RPCStateProvider) Invalidate(draftID uuid.UUID) {
	p.cache.Remove(draftID)
}

// Snapshot returns the cached view with the clock recomputed for now.
// Concurrent misses for one draft share a single fetch.
func (p *RPCStateProvider) Snapshot(ctx context.Context, draftID uuid.UUID) (*Snapshot, error) {
	var base *Snapshot
	if v, ok := p.cache.Get(draftID); ok {
		base = v.(*Snapshot)
	} else {
		v, err, _ := p.group.Do(draftID.String(), func() (any, error) {
			snap, err := p.fetch(ctx, draftID)
			if err != nil {
				return nil, err
			}
			p.cache.Add(draftID, snap)
			return snap, nil
		})
		if err != nil {
			return nil, err
		}
		base = v.(*Snapshot)
	}

	out := *base
	out.ServerTime = p.clock.Now().UTC()
	switch {
	case out.Status == models.DraftStatusActive && out.CurrentPick != nil && out.CurrentPick.TimeoutAt != nil:
		out.TimeRemainingMs = clock.Remaining(*out.CurrentPick.TimeoutAt, out.ServerTime).Milliseconds()
	case out.Status == models.DraftStatusPaused:
		out.TimeRemainingMs = out.remainingOnPause.Milliseconds()
	default:
		out.TimeRemainingMs = 0
	}
	return &out, nil
}

func (p *RPCStateProvider) fetch(ctx context.Context, draftID uuid.UUID) (*Snapshot, error) {
	draftResp, err := p.reader.GetDraft(ctx, connect.NewRequest(&draftrpc.GetDraftRequest{DraftID: draftID.String()}))
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	picksResp, err := p.reader.ListPicks(ctx, connect.NewRequest(&draftrpc.ListPicksRequest{DraftID: draftID.String()}))
	if err != nil {
		return nil, fmt.Errorf("list picks: %w", err)
	}
	return buildSnapshot(draftResp.Msg, picksResp.Msg.Picks), nil
}

func buildSnapshot(d *draftrpc.GetDraftResponse, picks []models.DraftPick) *Snapshot {
	participants := make(map[uuid.UUID]models.Participant, len(d.Participants))
	for _, pt := range d.Participants {
		participants[pt.ID] = pt
	}

	snap := &Snapshot{
		DraftID:        d.Draft.ID.String(),
		Status:         d.Draft.Status,
		OrderMode:      d.Draft.Config.OrderMode,
		TotalPicks:     d.Draft.Config.TotalPicks(),
		CompletedPicks: len(picks),
		RecentPicks:    []RecentPickInfo{},
	}

	if st := d.State; st != nil {
		snap.Status = st.Status
		snap.Version = st.Version
		snap.remainingOnPause = st.RemainingOnPause
		live := st.Status == models.DraftStatusActive || st.Status == models.DraftStatusPaused
		if live && st.CurrentPick >= 1 && st.CurrentPick <= len(d.Schedule) {
			slot := d.Schedule[st.CurrentPick-1]
			pt := participants[slot.ParticipantID]
			cur := &CurrentPickInfo{
				ParticipantID:  slot.ParticipantID.String(),
				DisplayName:    pt.DisplayName,
				IsBot:          pt.IsBot,
				Round:          slot.Round,
				PickInRound:    slot.PickInRound,
				OverallPick:    slot.OverallPick,
				StartedAt:      st.PickStartedAt,
				TimePerPickSec: d.Draft.Config.TimePerPickSec,
			}
			if !st.Deadline.IsZero() {
				deadline := st.Deadline
				cur.TimeoutAt = &deadline
			}
			snap.CurrentPick = cur
		}
	}

	sorted := append([]models.DraftPick(nil), picks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OverallPick > sorted[j].OverallPick })
	if len(sorted) > recentPickCount {
		sorted = sorted[:recentPickCount]
	}
	for _, pk := range sorted {
		snap.RecentPicks = append(snap.RecentPicks, RecentPickInfo{
			PickID:        pk.ID.String(),
			ParticipantID: pk.ParticipantID.String(),
			DisplayName:   participants[pk.ParticipantID].DisplayName,
			PlayerID:      pk.PlayerID.String(),
			Round:         pk.Round,
			PickInRound:   pk.PickInRound,
			OverallPick:   pk.OverallPick,
			Autopick:      pk.Autopick,
			MadeAt:        pk.PickedAt,
		})
	}
	return snap
}
