package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// Event payload types shared between the session engine, the gateway and the client

// ParticipantsPayload is the full roster pushed on every presence change
type ParticipantsPayload struct {
	Participants []models.Participant `json:"participants"`
}

// StatusPayload is pushed on every status transition
type StatusPayload struct {
	Status models.SessionStatus `json:"status"`
	At     time.Time            `json:"at"`
}

// LeaderboardPayload is the ranked snapshot pushed on every score change
type LeaderboardPayload struct {
	Entries []models.LeaderboardEntry `json:"entries"`
}

// ActivityPayload carries the full activity when the session moves to a new one
type ActivityPayload struct {
	ActivityIndex int             `json:"activity_index"`
	Activity      models.Activity `json:"activity"`
}

// ContentEvent values for ContentPayload.Event
const ContentEventAdvanced = "advanced"

// ContentPayload is pushed on every content position change
type ContentPayload struct {
	Event         string              `json:"event"`
	ActivityID    string              `json:"activity_id"`
	ActivityIndex int                 `json:"activity_index"`
	CurrentIndex  int                 `json:"current_index"`
	ContentItem   *models.ContentItem `json:"content_item,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	DeadlineAt    *time.Time          `json:"deadline_at,omitempty"`
}

// TeamsPayload is pushed when teams are formed for an activity
type TeamsPayload struct {
	ActivityID string        `json:"activity_id"`
	Teams      []models.Team `json:"teams"`
}

// Drawing event types
const (
	DrawingStroke = "stroke"
	DrawingClear  = "clear"
	DrawingFull   = "full"
)

// DrawingPayload is pushed on the team drawing topic
type DrawingPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PromptAdvancePayload tells team members to reset local guess and hint state
type PromptAdvancePayload struct {
	TeamID          string    `json:"team_id"`
	PromptIndex     int       `json:"prompt_index"`
	PromptCount     int       `json:"prompt_count"`
	PromptStartedAt time.Time `json:"prompt_started_at"`
	DurationSec     int       `json:"duration_sec"`
	DrawerID        string    `json:"drawer_id"`
	Reason          string    `json:"reason"` // "guessed", "timeout", "formed"
	Done            bool      `json:"done"`
}

// GuessResultPayload is the latest arbitration outcome for a team
type GuessResultPayload struct {
	TeamID       string `json:"team_id"`
	UserID       string `json:"user_id"`
	Text         string `json:"text"`
	Correct      bool   `json:"correct"`
	PromptIndex  int    `json:"prompt_index"`
	PointsEarned int    `json:"points_earned,omitempty"`
}

// RolesPayload is pushed when the drawer changes
type RolesPayload struct {
	TeamID     string `json:"team_id"`
	DrawerID   string `json:"drawer_id"`
	PreviousID string `json:"previous_id"`
	ChangedBy  string `json:"changed_by"`
}

// Lifecycle payloads published to the durable event stream

// SessionCreatedPayload is the payload for a SessionCreated event
type SessionCreatedPayload struct {
	SessionID  string    `json:"session_id"`
	AccessCode string    `json:"access_code"`
	GameID     string    `json:"game_id"`
	ClassID    string    `json:"class_id"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	SessionID        string    `json:"session_id"`
	AccessCode       string    `json:"access_code"`
	StartedAt        time.Time `json:"started_at"`
	ParticipantCount int       `json:"participant_count"`
}

// ActivityStartedPayload is the payload for an ActivityStarted event
type ActivityStartedPayload struct {
	SessionID     string              `json:"session_id"`
	ActivityID    string              `json:"activity_id"`
	ActivityIndex int                 `json:"activity_index"`
	ActivityType  models.ActivityType `json:"activity_type"`
	StartedAt     time.Time           `json:"started_at"`
}

// SessionCompletedPayload is the payload for a SessionCompleted event
type SessionCompletedPayload struct {
	SessionID   string                    `json:"session_id"`
	AccessCode  string                    `json:"access_code"`
	CompletedAt time.Time                 `json:"completed_at"`
	Duration    string                    `json:"duration"`
	Reason      string                    `json:"reason"` // "ended", "exhausted"
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}
