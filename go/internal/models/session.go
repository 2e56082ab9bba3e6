package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a live session.
type SessionStatus string

const (
	SessionStatusLobby     SessionStatus = "LOBBY"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Session represents one live play-through of a game.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	AccessCode       string        `json:"access_code"`
	GameID           uuid.UUID     `json:"game_id"`
	ClassID          uuid.UUID     `json:"class_id"`
	OwnerID          string        `json:"owner_id"`
	Status           SessionStatus `json:"status"`
	ActivityIndex    int           `json:"activity_index"`
	ContentIndex     int           `json:"content_index"`
	ContentStartedAt *time.Time    `json:"content_started_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Participant is a user present in a session roster.
type Participant struct {
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	Active          bool      `json:"active"`
	JoinedAt        time.Time `json:"joined_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Submission is an immutable record of one graded answer.
type Submission struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	ActivityID    uuid.UUID       `json:"activity_id"`
	ContentID     uuid.UUID       `json:"content_id"`
	ContentIndex  int             `json:"content_index"`
	Answer        json.RawMessage `json:"answer"`
	TimeRemaining float64         `json:"time_remaining"`
	Correct       bool            `json:"correct"`
	PointsEarned  int             `json:"points_earned"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// LeaderboardEntry is a derived standing for one participant.
type LeaderboardEntry struct {
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Score          int    `json:"score"`
	CorrectCount   int    `json:"correct_count"`
	IncorrectCount int    `json:"incorrect_count"`
	Rank           int    `json:"rank"`
}

// SessionArchive is the durable record written when a session completes.
type SessionArchive struct {
	Session      Session            `json:"session"`
	Participants []Participant      `json:"participants"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Submissions  []Submission       `json:"submissions"`
	Teams        []Team             `json:"teams,omitempty"`
}
