package draftrpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const (
	DraftServiceName     = "draft.v1.DraftService"
	DraftPickServiceName = "draft.v1.DraftPickService"
)

const (
	DraftServiceCreateDraftProcedure          = "/draft.v1.DraftService/CreateDraft"
	DraftServiceGetDraftProcedure             = "/draft.v1.DraftService/GetDraft"
	DraftServiceGetDraftStateProcedure        = "/draft.v1.DraftService/GetDraftState"
	DraftServiceStartDraftProcedure           = "/draft.v1.DraftService/StartDraft"
	DraftServicePauseDraftProcedure           = "/draft.v1.DraftService/PauseDraft"
	DraftServiceResumeDraftProcedure          = "/draft.v1.DraftService/ResumeDraft"
	DraftServiceCancelDraftProcedure          = "/draft.v1.DraftService/CancelDraft"
	DraftServiceListPicksProcedure            = "/draft.v1.DraftService/ListPicks"
	DraftServiceListAvailablePlayersProcedure = "/draft.v1.DraftService/ListAvailablePlayers"
	DraftPickServiceSubmitPickProcedure       = "/draft.v1.DraftPickService/SubmitPick"
)

type DraftServiceHandler interface {
	CreateDraft(context.Context, *connect.Request[CreateDraftRequest]) (*connect.Response[CreateDraftResponse], error)
	GetDraft(context.Context, *connect.Request[GetDraftRequest]) (*connect.Response[GetDraftResponse], error)
	GetDraftState(context.Context, *connect.Request[GetDraftStateRequest]) (*connect.Response[GetDraftStateResponse], error)
	StartDraft(context.Context, *connect.Request[StartDraftRequest]) (*connect.Response[StartDraftResponse], error)
	PauseDraft(context.Context, *connect.Request[PauseDraftRequest]) (*connect.Response[PauseDraftResponse], error)
	ResumeDraft(context.Context, *connect.Request[ResumeDraftRequest]) (*connect.Response[ResumeDraftResponse], error)
	CancelDraft(context.Context, *connect.Request[CancelDraftRequest]) (*connect.Response[CancelDraftResponse], error)
	ListPicks(context.Context, *connect.Request[ListPicksRequest]) (*connect.Response[ListPicksResponse], error)
	ListAvailablePlayers(context.Context, *connect.Request[ListAvailablePlayersRequest]) (*connect.Response[ListAvailablePlayersResponse], error)
}

type DraftPickServiceHandler interface {
	SubmitPick(context.Context, *connect.Request[SubmitPickRequest]) (*connect.Response[SubmitPickResponse], error)
}

// withCodec puts the JSON codec in front of any caller options.
func withCodec(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
}

// NewDraftServiceHandler returns the mount path and handler for svc.
func NewDraftServiceHandler(svc DraftServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	mux := http.NewServeMux()
	mux.Handle(DraftServiceCreateDraftProcedure, connect.NewUnaryHandler(DraftServiceCreateDraftProcedure, svc.CreateDraft, opts...))
	mux.Handle(DraftServiceGetDraftProcedure, connect.NewUnaryHandler(DraftServiceGetDraftProcedure, svc.GetDraft, opts...))
	mux.Handle(DraftServiceGetDraftStateProcedure, connect.NewUnaryHandler(DraftServiceGetDraftStateProcedure, svc.GetDraftState, opts...))
	mux.Handle(DraftServiceStartDraftProcedure, connect.NewUnaryHandler(DraftServiceStartDraftProcedure, svc.StartDraft, opts...))
	mux.Handle(DraftServicePauseDraftProcedure, connect.NewUnaryHandler(DraftServicePauseDraftProcedure, svc.PauseDraft, opts...))
	mux.Handle(DraftServiceResumeDraftProcedure, connect.NewUnaryHandler(DraftServiceResumeDraftProcedure, svc.ResumeDraft, opts...))
	mux.Handle(DraftServiceCancelDraftProcedure, connect.NewUnaryHandler(DraftServiceCancelDraftProcedure, svc.CancelDraft, opts...))
	mux.Handle(DraftServiceListPicksProcedure, connect.NewUnaryHandler(DraftServiceListPicksProcedure, svc.ListPicks, opts...))
	mux.Handle(DraftServiceListAvailablePlayersProcedure, connect.NewUnaryHandler(DraftServiceListAvailablePlayersProcedure, svc.ListAvailablePlayers, opts...))
	return "/" + DraftServiceName + "/", mux
}

// NewDraftPickServiceHandler returns the mount path and handler for svc.
func NewDraftPickServiceHandler(svc DraftPickServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	mux := http.NewServeMux()
	mux.Handle(DraftPickServiceSubmitPickProcedure, connect.NewUnaryHandler(DraftPickServiceSubmitPickProcedure, svc.SubmitPick, opts...))
	return "/" + DraftPickServiceName + "/", mux
}
