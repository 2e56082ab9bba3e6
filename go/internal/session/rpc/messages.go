package rpc

import (
	"encoding/json"

	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
)

// Ack acknowledges a call that has no other result
type Ack struct {
	OK bool `json:"ok"`
}

// SessionRef names a session by access code
type SessionRef struct {
	AccessCode string `json:"access_code"`
}

// TeamRef names one team of a session
type TeamRef struct {
	AccessCode string `json:"access_code"`
	TeamID     string `json:"team_id"`
}

type CreateSessionRequest struct {
	GameID  string `json:"game_id"`
	ClassID string `json:"class_id,omitempty"`
}

type CreateSessionResponse struct {
	SessionID  string         `json:"session_id"`
	AccessCode string         `json:"access_code"`
	Session    models.Session `json:"session"`
}

type JoinSessionRequest struct {
	AccessCode string `json:"access_code"`
	// ParticipantID defaults to the caller and may not name anyone else
	ParticipantID string `json:"participant_id,omitempty"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

type JoinSessionResponse struct {
	Participant models.Participant `json:"participant"`
}

type ParticipantRef struct {
	AccessCode    string `json:"access_code"`
	ParticipantID string `json:"participant_id,omitempty"`
}

type GetSessionResponse struct {
	Snapshot session.Snapshot `json:"snapshot"`
}

type GetParticipantsResponse struct {
	Participants []models.Participant `json:"participants"`
}

type SessionResponse struct {
	Session models.Session `json:"session"`
}

type SubmitAnswerRequest struct {
	AccessCode    string          `json:"access_code"`
	ActivityID    string          `json:"activity_id"`
	ContentID     string          `json:"content_id,omitempty"`
	ContentIndex  int             `json:"content_index"`
	Answer        json.RawMessage `json:"answer"`
	TimeRemaining *float64        `json:"time_remaining,omitempty"`
}

type SubmitAnswerResponse struct {
	session.SubmitResult
}

type AdvanceContentRequest struct {
	AccessCode          string `json:"access_code"`
	ActivityID          string `json:"activity_id"`
	CurrentContentIndex int    `json:"current_content_index"`
}

type AdvanceContentResponse struct {
	session.AdvanceResult
}

type GetLeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
}

type FormTeamsRequest struct {
	AccessCode string `json:"access_code"`
	AutoAssign bool   `json:"auto_assign"`
}

type TeamsResponse struct {
	Teams []models.Team `json:"teams"`
}

type TeamResponse struct {
	Team models.Team `json:"team"`
}

type ChallengeStatusResponse struct {
	Status teamchallenge.Status `json:"status"`
}

type SubmitGuessRequest struct {
	AccessCode  string `json:"access_code"`
	TeamID      string `json:"team_id"`
	Guess       string `json:"guess"`
	PromptIndex *int   `json:"prompt_index"`
}

type SubmitGuessResponse struct {
	session.GuessResult
}

type SkipPromptRequest struct {
	AccessCode  string `json:"access_code"`
	TeamID      string `json:"team_id"`
	PromptIndex int    `json:"prompt_index"`
}

type SwitchDrawerRequest struct {
	AccessCode  string `json:"access_code"`
	TeamID      string `json:"team_id"`
	NewDrawerID string `json:"new_drawer_id"`
}

type DrawingRequest struct {
	AccessCode string          `json:"access_code"`
	TeamID     string          `json:"team_id"`
	Data       json.RawMessage `json:"data"`
}

type DrawingResponse struct {
	Drawing teamchallenge.Drawing `json:"drawing"`
}

type StrokeResponse struct {
	Stroke models.Stroke `json:"stroke"`
}
