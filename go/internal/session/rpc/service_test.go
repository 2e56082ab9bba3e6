package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
)

type testServer struct {
	url    string
	tokens *auth.Tokens
	game   *models.Game
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tokens := auth.NewTokens("test-secret", "livequiz", time.Hour, clock)

	game := &models.Game{
		ID:      uuid.New(),
		Title:   "Geography",
		OwnerID: "teacher-1",
		Activities: []models.Activity{{
			ID:   uuid.New(),
			Type: models.ActivityTypeMultipleChoice,
			Content: []models.ContentItem{{
				ID:          uuid.New(),
				Data:        json.RawMessage(`{"question":"Capital of France?","options":["Lyon","Paris"]}`),
				AnswerKey:   json.RawMessage(`{"correct_index":1}`),
				DurationSec: 60,
			}, {
				ID:          uuid.New(),
				Data:        json.RawMessage(`{"question":"Capital of Spain?","options":["Madrid","Seville"]}`),
				AnswerKey:   json.RawMessage(`{"correct_index":0}`),
				DurationSec: 60,
			}},
		}},
	}
	cat := catalog.NewMemory()
	cat.AddGame(game)

	mgr := session.NewManager(session.DefaultConfig(), cat, broadcast.New(broadcast.WithClock(clock)), session.WithClock(clock))
	path, handler := NewSessionServiceHandler(NewService(mgr), connect.WithInterceptors(NewAuthInterceptor(tokens)))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, tokens: tokens, game: game}
}

func (ts *testServer) client(t *testing.T, userID, role string) *Client {
	t.Helper()
	token, err := ts.tokens.Sign(auth.Identity{UserID: userID, Name: userID, Role: role})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return NewClient(http.DefaultClient, ts.url, connect.WithInterceptors(NewTokenInterceptor(func() string { return token })))
}

func TestCallsRequireToken(t *testing.T) {
	ts := newTestServer(t)
	anon := NewClient(http.DefaultClient, ts.url)

	_, err := anon.GetSession(context.Background(), &SessionRef{AccessCode: "ABCDEF"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want unauthenticated", err)
	}

	bad := NewClient(http.DefaultClient, ts.url, connect.WithInterceptors(NewTokenInterceptor(func() string { return "garbage" })))
	if _, err := bad.GetSession(context.Background(), &SessionRef{AccessCode: "ABCDEF"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want unauthenticated", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	teacher := ts.client(t, "teacher-1", auth.RoleTeacher)
	student := ts.client(t, "student-1", auth.RoleStudent)

	if _, err := student.CreateSession(ctx, &CreateSessionRequest{GameID: ts.game.ID.String()}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("student create err = %v, want forbidden", err)
	}
	if _, err := teacher.CreateSession(ctx, &CreateSessionRequest{GameID: "not-a-uuid"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad id err = %v, want validation", err)
	}
	if _, err := teacher.CreateSession(ctx, &CreateSessionRequest{GameID: uuid.NewString()}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown game err = %v, want not found", err)
	}

	created, err := teacher.CreateSession(ctx, &CreateSessionRequest{GameID: ts.game.ID.String()})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	code := created.AccessCode
	if len(code) != 6 || created.Session.Status != models.SessionStatusLobby {
		t.Fatalf("created = %+v", created)
	}

	if _, err := student.JoinSession(ctx, &JoinSessionRequest{AccessCode: "ZZZZZZ", DisplayName: "Ana"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("join unknown err = %v, want not found", err)
	}
	if _, err := student.JoinSession(ctx, &JoinSessionRequest{AccessCode: code, ParticipantID: "student-2", DisplayName: "Ana"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("join as other err = %v, want forbidden", err)
	}
	joined, err := student.JoinSession(ctx, &JoinSessionRequest{AccessCode: code, DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	if joined.Participant.UserID != "student-1" || !joined.Participant.Active {
		t.Fatalf("participant = %+v", joined.Participant)
	}

	if _, err := student.StartSession(ctx, &SessionRef{AccessCode: code}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("student start err = %v, want forbidden", err)
	}
	if _, err := teacher.StartSession(ctx, &SessionRef{AccessCode: code}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := teacher.StartSession(ctx, &SessionRef{AccessCode: code}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("double start err = %v, want state", err)
	}

	got, err := student.GetSession(ctx, &SessionRef{AccessCode: code})
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	snap := got.Snapshot
	if snap.Session.Status != models.SessionStatusActive || snap.ContentItem == nil || snap.DeadlineAt == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.ContentItem.AnswerKey != nil {
		t.Fatal("answer key leaked to client")
	}

	act := ts.game.Activities[0]
	res, err := student.SubmitAnswer(ctx, &SubmitAnswerRequest{
		AccessCode:   code,
		ActivityID:   act.ID.String(),
		ContentID:    act.Content[0].ID.String(),
		ContentIndex: 0,
		Answer:       json.RawMessage(`1`),
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !res.Valid || !res.Correct || res.PointsEarned <= 0 {
		t.Fatalf("submit result = %+v", res.SubmitResult)
	}

	stale, err := student.SubmitAnswer(ctx, &SubmitAnswerRequest{
		AccessCode:   code,
		ActivityID:   act.ID.String(),
		ContentIndex: 1,
		Answer:       json.RawMessage(`0`),
	})
	if err != nil {
		t.Fatalf("stale SubmitAnswer: %v", err)
	}
	if stale.Valid || stale.Reason != session.RejectStale {
		t.Fatalf("stale result = %+v", stale.SubmitResult)
	}

	board, err := student.GetLeaderboard(ctx, &SessionRef{AccessCode: code})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board.Entries) != 1 || board.Entries[0].Score != res.PointsEarned || board.Entries[0].Rank != 1 {
		t.Fatalf("leaderboard = %+v", board.Entries)
	}

	adv, err := teacher.AdvanceContent(ctx, &AdvanceContentRequest{AccessCode: code, ActivityID: act.ID.String()})
	if err != nil {
		t.Fatalf("AdvanceContent: %v", err)
	}
	if !adv.Advanced || adv.Position.ContentIndex != 1 {
		t.Fatalf("advance = %+v", adv.AdvanceResult)
	}
	again, err := teacher.AdvanceContent(ctx, &AdvanceContentRequest{AccessCode: code, ActivityID: act.ID.String()})
	if err != nil {
		t.Fatalf("repeated AdvanceContent: %v", err)
	}
	if again.Advanced {
		t.Fatal("repeated advance moved the session")
	}

	if _, err := student.Heartbeat(ctx, &ParticipantRef{AccessCode: code}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if _, err := student.GetTeams(ctx, &SessionRef{AccessCode: code}); err != nil {
		t.Fatalf("GetTeams: %v", err)
	}
	if _, err := teacher.FormTeams(ctx, &FormTeamsRequest{AccessCode: code, AutoAssign: true}); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("FormTeams on quiz err = %v, want state", err)
	}

	ended, err := teacher.EndSession(ctx, &SessionRef{AccessCode: code})
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.Session.Status != models.SessionStatusCompleted {
		t.Fatalf("ended status = %s", ended.Session.Status)
	}
	if _, err := student.JoinSession(ctx, &JoinSessionRequest{AccessCode: code, DisplayName: "Ana"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("join completed err = %v, want conflict", err)
	}

	if _, err := student.LeaveSession(ctx, &ParticipantRef{AccessCode: code}); err != nil {
		t.Fatalf("LeaveSession: %v", err)
	}
	roster, err := teacher.GetParticipants(ctx, &SessionRef{AccessCode: code})
	if err != nil {
		t.Fatalf("GetParticipants: %v", err)
	}
	if len(roster.Participants) != 1 {
		t.Fatalf("roster after leaving a completed session = %+v", roster.Participants)
	}
}

func TestSubmitGuessRequiresPromptIndex(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	student := ts.client(t, "student-1", auth.RoleStudent)

	_, err := student.SubmitGuess(ctx, &SubmitGuessRequest{AccessCode: "ABCDEF", TeamID: "team-1", Guess: "cat"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("guess without prompt index err = %v, want validation", err)
	}
	idx := 0
	_, err = student.SubmitGuess(ctx, &SubmitGuessRequest{AccessCode: "ABCDEF", TeamID: "team-1", Guess: "cat", PromptIndex: &idx})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("guess with prompt index err = %v, want not found", err)
	}
}

func TestFromConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid argument", connect.NewError(connect.CodeInvalidArgument, errors.New("x")), apperr.ErrValidation},
		{"failed precondition", connect.NewError(connect.CodeFailedPrecondition, errors.New("x")), apperr.ErrState},
		{"not found", connect.NewError(connect.CodeNotFound, errors.New("x")), apperr.ErrNotFound},
		{"permission denied", connect.NewError(connect.CodePermissionDenied, errors.New("x")), apperr.ErrForbidden},
		{"already exists", connect.NewError(connect.CodeAlreadyExists, errors.New("x")), apperr.ErrConflict},
		{"unavailable", connect.NewError(connect.CodeUnavailable, errors.New("x")), apperr.ErrTransient},
		{"transport", errors.New("connection refused"), apperr.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromConnectError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("FromConnectError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
