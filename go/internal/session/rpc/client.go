package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the session service. Errors come back as engine error kinds,
// see FromConnectError.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
}

// NewClient creates a client for the service at baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *Client, procedure string, req *Req) (*Res, error) {
	cl := connect.NewClient[Req, Res](c.httpClient, c.baseURL+procedure, c.opts...)
	resp, err := cl.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return resp.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return call[CreateSessionRequest, CreateSessionResponse](ctx, c, ProcedureCreateSession, req)
}

func (c *Client) JoinSession(ctx context.Context, req *JoinSessionRequest) (*JoinSessionResponse, error) {
	return call[JoinSessionRequest, JoinSessionResponse](ctx, c, ProcedureJoinSession, req)
}

func (c *Client) LeaveSession(ctx context.Context, req *ParticipantRef) (*Ack, error) {
	return call[ParticipantRef, Ack](ctx, c, ProcedureLeaveSession, req)
}

func (c *Client) GetSession(ctx context.Context, req *SessionRef) (*GetSessionResponse, error) {
	return call[SessionRef, GetSessionResponse](ctx, c, ProcedureGetSession, req)
}

func (c *Client) GetParticipants(ctx context.Context, req *SessionRef) (*GetParticipantsResponse, error) {
	return call[SessionRef, GetParticipantsResponse](ctx, c, ProcedureGetParticipants, req)
}

func (c *Client) StartSession(ctx context.Context, req *SessionRef) (*SessionResponse, error) {
	return call[SessionRef, SessionResponse](ctx, c, ProcedureStartSession, req)
}

func (c *Client) EndSession(ctx context.Context, req *SessionRef) (*SessionResponse, error) {
	return call[SessionRef, SessionResponse](ctx, c, ProcedureEndSession, req)
}

func (c *Client) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	return call[SubmitAnswerRequest, SubmitAnswerResponse](ctx, c, ProcedureSubmitAnswer, req)
}

func (c *Client) AdvanceContent(ctx context.Context, req *AdvanceContentRequest) (*AdvanceContentResponse, error) {
	return call[AdvanceContentRequest, AdvanceContentResponse](ctx, c, ProcedureAdvanceContent, req)
}

func (c *Client) GetLeaderboard(ctx context.Context, req *SessionRef) (*GetLeaderboardResponse, error) {
	return call[SessionRef, GetLeaderboardResponse](ctx, c, ProcedureGetLeaderboard, req)
}

func (c *Client) Heartbeat(ctx context.Context, req *ParticipantRef) (*Ack, error) {
	return call[ParticipantRef, Ack](ctx, c, ProcedureHeartbeat, req)
}

func (c *Client) FormTeams(ctx context.Context, req *FormTeamsRequest) (*TeamsResponse, error) {
	return call[FormTeamsRequest, TeamsResponse](ctx, c, ProcedureFormTeams, req)
}

func (c *Client) GetTeams(ctx context.Context, req *SessionRef) (*TeamsResponse, error) {
	return call[SessionRef, TeamsResponse](ctx, c, ProcedureGetTeams, req)
}

func (c *Client) GetChallengeStatus(ctx context.Context, req *TeamRef) (*ChallengeStatusResponse, error) {
	return call[TeamRef, ChallengeStatusResponse](ctx, c, ProcedureGetChallengeStatus, req)
}

func (c *Client) SubmitGuess(ctx context.Context, req *SubmitGuessRequest) (*SubmitGuessResponse, error) {
	return call[SubmitGuessRequest, SubmitGuessResponse](ctx, c, ProcedureSubmitGuess, req)
}

func (c *Client) SkipPrompt(ctx context.Context, req *SkipPromptRequest) (*TeamResponse, error) {
	return call[SkipPromptRequest, TeamResponse](ctx, c, ProcedureSkipPrompt, req)
}

func (c *Client) SwitchDrawer(ctx context.Context, req *SwitchDrawerRequest) (*TeamResponse, error) {
	return call[SwitchDrawerRequest, TeamResponse](ctx, c, ProcedureSwitchDrawer, req)
}

func (c *Client) DrawStroke(ctx context.Context, req *DrawingRequest) (*StrokeResponse, error) {
	return call[DrawingRequest, StrokeResponse](ctx, c, ProcedureDrawStroke, req)
}

func (c *Client) ClearDrawing(ctx context.Context, req *TeamRef) (*Ack, error) {
	return call[TeamRef, Ack](ctx, c, ProcedureClearDrawing, req)
}

func (c *Client) SaveDrawing(ctx context.Context, req *DrawingRequest) (*Ack, error) {
	return call[DrawingRequest, Ack](ctx, c, ProcedureSaveDrawing, req)
}

func (c *Client) GetDrawing(ctx context.Context, req *TeamRef) (*DrawingResponse, error) {
	return call[TeamRef, DrawingResponse](ctx, c, ProcedureGetDrawing, req)
}
