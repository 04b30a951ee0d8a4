package draftrpc

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

// DraftServiceClient calls DraftService over connect with the JSON codec.
type DraftServiceClient struct {
	createDraft          *connect.Client[CreateDraftRequest, CreateDraftResponse]
	getDraft             *connect.Client[GetDraftRequest, GetDraftResponse]
	getDraftState        *connect.Client[GetDraftStateRequest, GetDraftStateResponse]
	startDraft           *connect.Client[StartDraftRequest, StartDraftResponse]
	pauseDraft           *connect.Client[PauseDraftRequest, PauseDraftResponse]
	resumeDraft          *connect.Client[ResumeDraftRequest, ResumeDraftResponse]
	cancelDraft          *connect.Client[CancelDraftRequest, CancelDraftResponse]
	listPicks            *connect.Client[ListPicksRequest, ListPicksResponse]
	listAvailablePlayers *connect.Client[ListAvailablePlayersRequest, ListAvailablePlayersResponse]
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
}

func NewDraftServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DraftServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &DraftServiceClient{
		createDraft:          connect.NewClient[CreateDraftRequest, CreateDraftResponse](httpClient, baseURL+DraftServiceCreateDraftProcedure, opts...),
		getDraft:             connect.NewClient[GetDraftRequest, GetDraftResponse](httpClient, baseURL+DraftServiceGetDraftProcedure, opts...),
		getDraftState:        connect.NewClient[GetDraftStateRequest, GetDraftStateResponse](httpClient, baseURL+DraftServiceGetDraftStateProcedure, opts...),
		startDraft:           connect.NewClient[StartDraftRequest, StartDraftResponse](httpClient, baseURL+DraftServiceStartDraftProcedure, opts...),
		pauseDraft:           connect.NewClient[PauseDraftRequest, PauseDraftResponse](httpClient, baseURL+DraftServicePauseDraftProcedure, opts...),
		resumeDraft:          connect.NewClient[ResumeDraftRequest, ResumeDraftResponse](httpClient, baseURL+DraftServiceResumeDraftProcedure, opts...),
		cancelDraft:          connect.NewClient[CancelDraftRequest, CancelDraftResponse](httpClient, baseURL+DraftServiceCancelDraftProcedure, opts...),
		listPicks:            connect.NewClient[ListPicksRequest, ListPicksResponse](httpClient, baseURL+DraftServiceListPicksProcedure, opts...),
		listAvailablePlayers: connect.NewClient[ListAvailablePlayersRequest, ListAvailablePlayersResponse](httpClient, baseURL+DraftServiceListAvailablePlayersProcedure, opts...),
	}
}

func (c *DraftServiceClient) CreateDraft(ctx context.Context, req *connect.Request[CreateDraftRequest]) (*connect.Response[CreateDraftResponse], error) {
	return c.createDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) GetDraft(ctx context.Context, req *connect.Request[GetDraftRequest]) (*connect.Response[GetDraftResponse], error) {
	return c.getDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) GetDraftState(ctx context.Context, req *connect.Request[GetDraftStateRequest]) (*connect.Response[GetDraftStateResponse], error) {
	return c.getDraftState.CallUnary(ctx, req)
}

func (c *DraftServiceClient) StartDraft(ctx context.Context, req *connect.Request[StartDraftRequest]) (*connect.Response[StartDraftResponse], error) {
	return c.startDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) PauseDraft(ctx context.Context, req *connect.Request[PauseDraftRequest]) (*connect.Response[PauseDraftResponse], error) {
	return c.pauseDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) ResumeDraft(ctx context.Context, req *connect.Request[ResumeDraftRequest]) (*connect.Response[ResumeDraftResponse], error) {
	return c.resumeDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) CancelDraft(ctx context.Context, req *connect.Request[CancelDraftRequest]) (*connect.Response[CancelDraftResponse], error) {
	return c.cancelDraft.CallUnary(ctx, req)
}

func (c *DraftServiceClient) ListPicks(ctx context.Context, req *connect.Request[ListPicksRequest]) (*connect.Response[ListPicksResponse], error) {
	return c.listPicks.CallUnary(ctx, req)
}

func (c *DraftServiceClient) ListAvailablePlayers(ctx context.Context, req *connect.Request[ListAvailablePlayersRequest]) (*connect.Response[ListAvailablePlayersResponse], error) {
	return c.listAvailablePlayers.CallUnary(ctx, req)
}

// DraftPickServiceClient calls DraftPickService.
type DraftPickServiceClient struct {
	submitPick *connect.Client[SubmitPickRequest, SubmitPickResponse]
}

func NewDraftPickServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DraftPickServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &DraftPickServiceClient{
		submitPick: connect.NewClient[SubmitPickRequest, SubmitPickResponse](httpClient, baseURL+DraftPickServiceSubmitPickProcedure, clientOptions(opts)...),
	}
}

// SubmitPick sends msg with token as the Idempotency-Key header.
func (c *DraftPickServiceClient) SubmitPick(ctx context.Context, token string, msg *SubmitPickRequest) (*connect.Response[SubmitPickResponse], error) {
	req := connect.NewRequest(msg)
	req.Header().Set(IdempotencyKeyHeader, token)
	return c.submitPick.CallUnary(ctx, req)
}

// ErrorKind returns the drafterr kind a failed call carried, if any.
func ErrorKind(err error) string {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return ""
	}
	return cerr.Meta().Get(ErrorKindHeader)
}
