package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
)

// SessionApp defines what the service layer needs from the session engine
type SessionApp interface {
	Create(ctx context.Context, req session.CreateRequest) (*models.Session, error)
	Join(ctx context.Context, code string, req session.JoinRequest) (*models.Participant, error)
	Leave(ctx context.Context, code, userID string) error
	Get(ctx context.Context, code string) (*session.Snapshot, error)
	Participants(ctx context.Context, code string) ([]models.Participant, error)
	Start(ctx context.Context, code, actor string) (*models.Session, error)
	End(ctx context.Context, code, actor string) (*models.Session, error)
	Submit(ctx context.Context, code string, req session.SubmitRequest) (*session.SubmitResult, error)
	Advance(ctx context.Context, code, actor string, req session.AdvanceRequest) (*session.AdvanceResult, error)
	Leaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error)
	Heartbeat(ctx context.Context, code, userID string) error
	FormTeams(ctx context.Context, code, actor string, autoAssign bool) ([]models.Team, error)
	Teams(ctx context.Context, code string) ([]models.Team, error)
	ChallengeStatus(ctx context.Context, code, userID, teamID string) (*teamchallenge.Status, error)
	SubmitGuess(ctx context.Context, code, userID, teamID, text string, promptIndex *int) (*session.GuessResult, error)
	SkipPrompt(ctx context.Context, code, actor, teamID string, promptIndex int) (*models.Team, error)
	SwitchDrawer(ctx context.Context, code, actor, teamID, newDrawerID string) (*models.Team, error)
	DrawStroke(ctx context.Context, code, actor, teamID string, data json.RawMessage) (*models.Stroke, error)
	ClearDrawing(ctx context.Context, code, actor, teamID string) error
	SaveDrawing(ctx context.Context, code, actor, teamID string, data json.RawMessage) error
	GetDrawing(ctx context.Context, code, userID, teamID string) (*teamchallenge.Drawing, error)
}

var _ SessionApp = (*session.Manager)(nil)

// Service implements the SessionService procedures
type Service struct {
	app SessionApp
}

// NewService creates a new session service
func NewService(app SessionApp) *Service {
	return &Service{app: app}
}

func caller(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok || id.UserID == "" {
		return auth.Identity{}, connect.NewError(connect.CodeUnauthenticated, ErrUnauthenticated)
	}
	return id, nil
}

// self resolves an optional participant id to the caller. Naming anyone else is forbidden.
func self(id auth.Identity, participantID string) (string, error) {
	if participantID != "" && participantID != id.UserID {
		return "", connect.NewError(connect.CodePermissionDenied,
			apperr.Forbidden("%s may not act for %s", id.UserID, participantID))
	}
	return id.UserID, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}

func ack() *connect.Response[Ack] {
	return connect.NewResponse(&Ack{OK: true})
}

// CreateSession opens a session for one of the caller's games
func (s *Service) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if id.Role != auth.RoleTeacher {
		return nil, connect.NewError(connect.CodePermissionDenied, apperr.Forbidden("only teachers may create sessions"))
	}
	gameID, err := parseID("game_id", req.Msg.GameID)
	if err != nil {
		return nil, err
	}
	classID, err := parseID("class_id", req.Msg.ClassID)
	if err != nil {
		return nil, err
	}

	info, err := s.app.Create(ctx, session.CreateRequest{OwnerID: id.UserID, GameID: gameID, ClassID: classID})
	if err != nil {
		return nil, toConnectError(ProcedureCreateSession, err)
	}
	return connect.NewResponse(&CreateSessionResponse{
		SessionID:  info.ID.String(),
		AccessCode: info.AccessCode,
		Session:    *info,
	}), nil
}

// JoinSession adds the caller to a session roster
func (s *Service) JoinSession(ctx context.Context, req *connect.Request[JoinSessionRequest]) (*connect.Response[JoinSessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := self(id, req.Msg.ParticipantID)
	if err != nil {
		return nil, err
	}
	name := req.Msg.DisplayName
	if name == "" {
		name = id.Name
	}

	p, err := s.app.Join(ctx, req.Msg.AccessCode, session.JoinRequest{
		UserID:      userID,
		DisplayName: name,
		AvatarURL:   req.Msg.AvatarURL,
	})
	if err != nil {
		return nil, toConnectError(ProcedureJoinSession, err)
	}
	return connect.NewResponse(&JoinSessionResponse{Participant: *p}), nil
}

// LeaveSession removes the caller from a session roster
func (s *Service) LeaveSession(ctx context.Context, req *connect.Request[ParticipantRef]) (*connect.Response[Ack], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := self(id, req.Msg.ParticipantID)
	if err != nil {
		return nil, err
	}
	if err := s.app.Leave(ctx, req.Msg.AccessCode, userID); err != nil {
		return nil, toConnectError(ProcedureLeaveSession, err)
	}
	return ack(), nil
}

// GetSession returns the status and current position
func (s *Service) GetSession(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[GetSessionResponse], error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	snap, err := s.app.Get(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(ProcedureGetSession, err)
	}
	return connect.NewResponse(&GetSessionResponse{Snapshot: *snap}), nil
}

// GetParticipants returns the roster in join order
func (s *Service) GetParticipants(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[GetParticipantsResponse], error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	roster, err := s.app.Participants(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(ProcedureGetParticipants, err)
	}
	return connect.NewResponse(&GetParticipantsResponse{Participants: roster}), nil
}

// StartSession begins the first content item
func (s *Service) StartSession(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[SessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.app.Start(ctx, req.Msg.AccessCode, id.UserID)
	if err != nil {
		return nil, toConnectError(ProcedureStartSession, err)
	}
	return connect.NewResponse(&SessionResponse{Session: *info}), nil
}

// EndSession completes a session
func (s *Service) EndSession(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[SessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.app.End(ctx, req.Msg.AccessCode, id.UserID)
	if err != nil {
		return nil, toConnectError(ProcedureEndSession, err)
	}
	return connect.NewResponse(&SessionResponse{Session: *info}), nil
}

// SubmitAnswer grades the caller's answer to the current content item
func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	activityID, err := parseID("activity_id", req.Msg.ActivityID)
	if err != nil {
		return nil, err
	}
	contentID, err := parseID("content_id", req.Msg.ContentID)
	if err != nil {
		return nil, err
	}

	res, err := s.app.Submit(ctx, req.Msg.AccessCode, session.SubmitRequest{
		UserID:        id.UserID,
		ActivityID:    activityID,
		ContentID:     contentID,
		ContentIndex:  req.Msg.ContentIndex,
		Answer:        req.Msg.Answer,
		TimeRemaining: req.Msg.TimeRemaining,
	})
	if err != nil {
		return nil, toConnectError(ProcedureSubmitAnswer, err)
	}
	return connect.NewResponse(&SubmitAnswerResponse{SubmitResult: *res}), nil
}

// AdvanceContent moves past the content item the caller names
func (s *Service) AdvanceContent(ctx context.Context, req *connect.Request[AdvanceContentRequest]) (*connect.Response[AdvanceContentResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	activityID, err := parseID("activity_id", req.Msg.ActivityID)
	if err != nil {
		return nil, err
	}
	res, err := s.app.Advance(ctx, req.Msg.AccessCode, id.UserID, session.AdvanceRequest{
		ActivityID:   activityID,
		ContentIndex: req.Msg.CurrentContentIndex,
	})
	if err != nil {
		return nil, toConnectError(ProcedureAdvanceContent, err)
	}
	return connect.NewResponse(&AdvanceContentResponse{AdvanceResult: *res}), nil
}

// GetLeaderboard returns the ranked standings
func (s *Service) GetLeaderboard(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[GetLeaderboardResponse], error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	entries, err := s.app.Leaderboard(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(ProcedureGetLeaderboard, err)
	}
	return connect.NewResponse(&GetLeaderboardResponse{Entries: entries}), nil
}

// Heartbeat keeps the caller active
func (s *Service) Heartbeat(ctx context.Context, req *connect.Request[ParticipantRef]) (*connect.Response[Ack], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := self(id, req.Msg.ParticipantID)
	if err != nil {
		return nil, err
	}
	if err := s.app.Heartbeat(ctx, req.Msg.AccessCode, userID); err != nil {
		return nil, toConnectError(ProcedureHeartbeat, err)
	}
	return ack(), nil
}

// FormTeams partitions active participants for the current team challenge
func (s *Service) FormTeams(ctx context.Context, req *connect.Request[FormTeamsRequest]) (*connect.Response[TeamsResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := s.app.FormTeams(ctx, req.Msg.AccessCode, id.UserID, req.Msg.AutoAssign)
	if err != nil {
		return nil, toConnectError(ProcedureFormTeams, err)
	}
	return connect.NewResponse(&TeamsResponse{Teams: teams}), nil
}

// GetTeams returns the teams of the current team challenge
func (s *Service) GetTeams(ctx context.Context, req *connect.Request[SessionRef]) (*connect.Response[TeamsResponse], error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	teams, err := s.app.Teams(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(ProcedureGetTeams, err)
	}
	return connect.NewResponse(&TeamsResponse{Teams: teams}), nil
}

// GetChallengeStatus returns a team's prompt state as the caller may see it
func (s *Service) GetChallengeStatus(ctx context.Context, req *connect.Request[TeamRef]) (*connect.Response[ChallengeStatusResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.app.ChallengeStatus(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID)
	if err != nil {
		return nil, toConnectError(ProcedureGetChallengeStatus, err)
	}
	return connect.NewResponse(&ChallengeStatusResponse{Status: *st}), nil
}

// SubmitGuess arbitrates a guess at the team's prompt
func (s *Service) SubmitGuess(ctx context.Context, req *connect.Request[SubmitGuessRequest]) (*connect.Response[SubmitGuessResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	// a retried guess without its prompt would be judged against the next one
	if req.Msg.PromptIndex == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, apperr.Validation("prompt_index is required"))
	}
	res, err := s.app.SubmitGuess(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID, req.Msg.Guess, req.Msg.PromptIndex)
	if err != nil {
		return nil, toConnectError(ProcedureSubmitGuess, err)
	}
	return connect.NewResponse(&SubmitGuessResponse{GuessResult: *res}), nil
}

// SkipPrompt moves a team past a prompt nobody guessed
func (s *Service) SkipPrompt(ctx context.Context, req *connect.Request[SkipPromptRequest]) (*connect.Response[TeamResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	team, err := s.app.SkipPrompt(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID, req.Msg.PromptIndex)
	if err != nil {
		return nil, toConnectError(ProcedureSkipPrompt, err)
	}
	return connect.NewResponse(&TeamResponse{Team: *team}), nil
}

// SwitchDrawer hands the pen to another team member
func (s *Service) SwitchDrawer(ctx context.Context, req *connect.Request[SwitchDrawerRequest]) (*connect.Response[TeamResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	team, err := s.app.SwitchDrawer(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID, req.Msg.NewDrawerID)
	if err != nil {
		return nil, toConnectError(ProcedureSwitchDrawer, err)
	}
	return connect.NewResponse(&TeamResponse{Team: *team}), nil
}

// DrawStroke appends a stroke delta to the team canvas
func (s *Service) DrawStroke(ctx context.Context, req *connect.Request[DrawingRequest]) (*connect.Response[StrokeResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	stroke, err := s.app.DrawStroke(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID, req.Msg.Data)
	if err != nil {
		return nil, toConnectError(ProcedureDrawStroke, err)
	}
	return connect.NewResponse(&StrokeResponse{Stroke: *stroke}), nil
}

// ClearDrawing wipes the team canvas
func (s *Service) ClearDrawing(ctx context.Context, req *connect.Request[TeamRef]) (*connect.Response[Ack], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.app.ClearDrawing(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID); err != nil {
		return nil, toConnectError(ProcedureClearDrawing, err)
	}
	return ack(), nil
}

// SaveDrawing stores a full canvas snapshot
func (s *Service) SaveDrawing(ctx context.Context, req *connect.Request[DrawingRequest]) (*connect.Response[Ack], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.app.SaveDrawing(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID, req.Msg.Data); err != nil {
		return nil, toConnectError(ProcedureSaveDrawing, err)
	}
	return ack(), nil
}

// GetDrawing returns the team canvas for a late joiner
func (s *Service) GetDrawing(ctx context.Context, req *connect.Request[TeamRef]) (*connect.Response[DrawingResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.app.GetDrawing(ctx, req.Msg.AccessCode, id.UserID, req.Msg.TeamID)
	if err != nil {
		return nil, toConnectError(ProcedureGetDrawing, err)
	}
	return connect.NewResponse(&DrawingResponse{Drawing: *d}), nil
}
