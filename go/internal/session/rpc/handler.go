package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the session service
const ServiceName = "livequiz.session.v1.SessionService"

// Procedure paths
const (
	ProcedureCreateSession      = "/" + ServiceName + "/CreateSession"
	ProcedureJoinSession        = "/" + ServiceName + "/JoinSession"
	ProcedureLeaveSession       = "/" + ServiceName + "/LeaveSession"
	ProcedureGetSession         = "/" + ServiceName + "/GetSession"
	ProcedureGetParticipants    = "/" + ServiceName + "/GetParticipants"
	ProcedureStartSession       = "/" + ServiceName + "/StartSession"
	ProcedureEndSession         = "/" + ServiceName + "/EndSession"
	ProcedureSubmitAnswer       = "/" + ServiceName + "/SubmitAnswer"
	ProcedureAdvanceContent     = "/" + ServiceName + "/AdvanceContent"
	ProcedureGetLeaderboard     = "/" + ServiceName + "/GetLeaderboard"
	ProcedureHeartbeat          = "/" + ServiceName + "/Heartbeat"
	ProcedureFormTeams          = "/" + ServiceName + "/FormTeams"
	ProcedureGetTeams           = "/" + ServiceName + "/GetTeams"
	ProcedureGetChallengeStatus = "/" + ServiceName + "/GetChallengeStatus"
	ProcedureSubmitGuess        = "/" + ServiceName + "/SubmitGuess"
	ProcedureSkipPrompt         = "/" + ServiceName + "/SkipPrompt"
	ProcedureSwitchDrawer       = "/" + ServiceName + "/SwitchDrawer"
	ProcedureDrawStroke         = "/" + ServiceName + "/DrawStroke"
	ProcedureClearDrawing       = "/" + ServiceName + "/ClearDrawing"
	ProcedureSaveDrawing        = "/" + ServiceName + "/SaveDrawing"
	ProcedureGetDrawing         = "/" + ServiceName + "/GetDrawing"
)

func mount[Req, Res any](mux *http.ServeMux, procedure string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error), opts []connect.HandlerOption) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// NewSessionServiceHandler builds an HTTP handler for every session procedure.
// It returns the path to mount the handler on.
func NewSessionServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mount(mux, ProcedureCreateSession, svc.CreateSession, opts)
	mount(mux, ProcedureJoinSession, svc.JoinSession, opts)
	mount(mux, ProcedureLeaveSession, svc.LeaveSession, opts)
	mount(mux, ProcedureGetSession, svc.GetSession, opts)
	mount(mux, ProcedureGetParticipants, svc.GetParticipants, opts)
	mount(mux, ProcedureStartSession, svc.StartSession, opts)
	mount(mux, ProcedureEndSession, svc.EndSession, opts)
	mount(mux, ProcedureSubmitAnswer, svc.SubmitAnswer, opts)
	mount(mux, ProcedureAdvanceContent, svc.AdvanceContent, opts)
	mount(mux, ProcedureGetLeaderboard, svc.GetLeaderboard, opts)
	mount(mux, ProcedureHeartbeat, svc.Heartbeat, opts)
	mount(mux, ProcedureFormTeams, svc.FormTeams, opts)
	mount(mux, ProcedureGetTeams, svc.GetTeams, opts)
	mount(mux, ProcedureGetChallengeStatus, svc.GetChallengeStatus, opts)
	mount(mux, ProcedureSubmitGuess, svc.SubmitGuess, opts)
	mount(mux, ProcedureSkipPrompt, svc.SkipPrompt, opts)
	mount(mux, ProcedureSwitchDrawer, svc.SwitchDrawer, opts)
	mount(mux, ProcedureDrawStroke, svc.DrawStroke, opts)
	mount(mux, ProcedureClearDrawing, svc.ClearDrawing, opts)
	mount(mux, ProcedureSaveDrawing, svc.SaveDrawing, opts)
	mount(mux, ProcedureGetDrawing, svc.GetDrawing, opts)

	return "/" + ServiceName + "/", mux
}
