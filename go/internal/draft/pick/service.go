package pick

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/draft/drafterr"
	"github.com/rs/zerolog/log"
)

// Submitter is the entry point for human picks. The orchestrator implements
// it so a stale read is retried once and the scheduler is woken afterwards.
type Submitter interface {
	SubmitPick(ctx context.Context, draftID uuid.UUID, token string, participantID, playerID uuid.UUID) (*Result, error)
}

// Service implements the DraftPickService connect interface
type Service struct {
	submitter Submitter
}

// NewService creates a new draft pick connect service
func NewService(submitter Submitter) *Service {
	return &Service{submitter: submitter}
}

// Verify that Service implements the DraftPickServiceHandler interface
var _ draftrpc.DraftPickServiceHandler = (*Service)(nil)

// SubmitPick commits a pick for the participant on the clock. The
// Idempotency-Key header is required; resending it returns the original pick.
func (s *Service) SubmitPick(ctx context.Context, req *connect.Request[draftrpc.SubmitPickRequest]) (*connect.Response[draftrpc.SubmitPickResponse], error) {
	token := strings.TrimSpace(req.Header().Get(draftrpc.IdempotencyKeyHeader))
	if token == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("missing Idempotency-Key header"))
	}
	draftID, err := uuid.Parse(req.Msg.DraftID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid draft_id: %w", err))
	}
	participantID, err := uuid.Parse(req.Msg.ParticipantID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid participant_id: %w", err))
	}
	playerID, err := uuid.Parse(req.Msg.PlayerID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid player_id: %w", err))
	}

	res, err := s.submitter.SubmitPick(ctx, draftID, token, participantID, playerID)
	if err != nil {
		kind := drafterr.KindOf(err)
		ev := log.Info()
		if kind == drafterr.KindUnknown || kind == drafterr.KindTransientFailure {
			ev = log.Error()
		}
		ev.Err(err).
			Str("draft_id", draftID.String()).
			Str("participant_id", participantID.String()).
			Str("kind", string(kind)).
			Msg("pick rejected")
		return nil, drafterr.ToConnect(err)
	}

	return connect.NewResponse(&draftrpc.SubmitPickResponse{
		Pick:     res.Pick,
		State:    res.State,
		Replayed: res.Replayed,
	}), nil
}
