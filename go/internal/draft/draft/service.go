package draft

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/clock"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftApp defines what the service layer needs from the draft application
type DraftApp interface {
	CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.Draft, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	GetState(ctx context.Context, id uuid.UUID) (*models.DraftState, error)
}

// Lifecycle moves drafts between statuses. *orchestrator.Orchestrator
// implements it.
type Lifecycle interface {
	Start(ctx context.Context, draftID uuid.UUID, now time.Time) (*orchestrator.StartResult, error)
	Pause(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.DraftState, error)
	Resume(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.DraftState, error)
	Cancel(ctx context.Context, draftID uuid.UUID, now time.Time) (*models.Draft, error)
}

// PickReader lists committed picks and the remaining pool.
type PickReader interface {
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	ListAvailablePlayers(ctx context.Context, draftID uuid.UUID) ([]pick.AvailablePlayer, error)
}

// Service implements the DraftService connect interface
type Service struct {
	app       DraftApp
	lifecycle Lifecycle
	picks     PickReader
	clock     clockwork.Clock
}

// NewService creates a new draft connect service
func NewService(app DraftApp, lifecycle Lifecycle, picks PickReader, clk clockwork.Clock) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Service{app: app, lifecycle: lifecycle, picks: picks, clock: clk}
}

// Verify that Service implements the DraftServiceHandler interface
var _ draftrpc.DraftServiceHandler = (*Service)(nil)

// CreateDraft creates a new scheduled draft
func (s *Service) CreateDraft(ctx context.Context, req *connect.Request[draftrpc.CreateDraftRequest]) (*connect.Response[draftrpc.CreateDraftResponse], error) {
	appReq, err := toCreateDraftRequest(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	d, err := s.app.CreateDraft(ctx, appReq)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.CreateDraftResponse{Draft: *d}), nil
}

// GetDraft returns the draft with its participants, state and schedule
func (s *Service) GetDraft(ctx context.Context, req *connect.Request[draftrpc.GetDraftRequest]) (*connect.Response[draftrpc.GetDraftResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	snap, err := s.app.GetSnapshot(ctx, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.GetDraftResponse{
		Draft:        snap.Draft,
		State:        snap.State,
		Participants: snap.Participants,
		Schedule:     snap.Schedule,
	}), nil
}

// GetDraftState returns the versioned state and the time left on the clock
func (s *Service) GetDraftState(ctx context.Context, req *connect.Request[draftrpc.GetDraftStateRequest]) (*connect.Response[draftrpc.GetDraftStateResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	st, err := s.app.GetState(ctx, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	remaining := st.RemainingOnPause
	if st.Status == models.DraftStatusActive {
		remaining = clock.Remaining(st.Deadline, s.clock.Now())
	}
	return connect.NewResponse(&draftrpc.GetDraftStateResponse{
		State:       *st,
		RemainingMs: remaining.Milliseconds(),
	}), nil
}

// StartDraft starts a scheduled draft whose time has come
func (s *Service) StartDraft(ctx context.Context, req *connect.Request[draftrpc.StartDraftRequest]) (*connect.Response[draftrpc.StartDraftResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	res, err := s.lifecycle.Start(ctx, draftID, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.StartDraftResponse{
		DraftID: res.DraftID.String(),
		Status:  res.Status,
		Started: res.Started,
		State:   res.State,
	}), nil
}

func (s *Service) PauseDraft(ctx context.Context, req *connect.Request[draftrpc.PauseDraftRequest]) (*connect.Response[draftrpc.PauseDraftResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	st, err := s.lifecycle.Pause(ctx, draftID, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.PauseDraftResponse{State: *st}), nil
}

func (s *Service) ResumeDraft(ctx context.Context, req *connect.Request[draftrpc.ResumeDraftRequest]) (*connect.Response[draftrpc.ResumeDraftResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	st, err := s.lifecycle.Resume(ctx, draftID, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.ResumeDraftResponse{State: *st}), nil
}

func (s *Service) CancelDraft(ctx context.Context, req *connect.Request[draftrpc.CancelDraftRequest]) (*connect.Response[draftrpc.CancelDraftResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	d, err := s.lifecycle.Cancel(ctx, draftID, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&draftrpc.CancelDraftResponse{Draft: *d}), nil
}

// ListPicks returns committed picks in overall order
func (s *Service) ListPicks(ctx context.Context, req *connect.Request[draftrpc.ListPicksRequest]) (*connect.Response[draftrpc.ListPicksResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	picks, err := s.picks.ListPicks(ctx, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if picks == nil {
		picks = []models.DraftPick{}
	}
	return connect.NewResponse(&draftrpc.ListPicksResponse{Picks: picks}), nil
}

// ListAvailablePlayers returns undrafted pool players, best rank first
func (s *Service) ListAvailablePlayers(ctx context.Context, req *connect.Request[draftrpc.ListAvailablePlayersRequest]) (*connect.Response[draftrpc.ListAvailablePlayersResponse], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	available, err := s.picks.ListAvailablePlayers(ctx, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	players := make([]models.Player, len(available))
	for i, p := range available {
		players[i] = p.Player
	}
	return connect.NewResponse(&draftrpc.ListAvailablePlayersResponse{Players: players}), nil
}

// Conversion methods between wire and app layer models

func toCreateDraftRequest(msg *draftrpc.CreateDraftRequest) (CreateDraftRequest, error) {
	leagueID, err := uuid.Parse(msg.LeagueID)
	if err != nil {
		return CreateDraftRequest{}, fmt.Errorf("invalid league_id: %w", err)
	}
	req := CreateDraftRequest{
		LeagueID:       leagueID,
		Rounds:         msg.Rounds,
		OrderMode:      models.OrderMode(msg.OrderMode),
		TimePerPickSec: msg.TimePerPickSec,
		PositionLimits: msg.PositionLimits,
		ScheduledAt:    msg.ScheduledAt,
		Pool:           msg.Pool,
	}
	if msg.ID != "" {
		if req.ID, err = uuid.Parse(msg.ID); err != nil {
			return CreateDraftRequest{}, fmt.Errorf("invalid id: %w", err)
		}
	}

	req.Participants = make([]ParticipantInput, len(msg.Participants))
	for i, p := range msg.Participants {
		in := ParticipantInput{DisplayName: p.DisplayName, IsBot: p.IsBot}
		if p.ID != "" {
			if in.ID, err = uuid.Parse(p.ID); err != nil {
				return CreateDraftRequest{}, fmt.Errorf("invalid participant id %q: %w", p.ID, err)
			}
		}
		req.Participants[i] = in
	}
	return req, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}

// toConnectError logs unexpected failures; expected kinds pass through quietly.
func toConnectError(err error) error {
	if k := drafterr.KindOf(err); k == drafterr.KindUnknown || k == drafterr.KindTransientFailure {
		log.Error().Err(err).Str("kind", string(k)).Msg("draft service call failed")
	}
	return drafterr.ToConnect(err)
}
