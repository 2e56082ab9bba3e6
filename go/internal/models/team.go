package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Team is a group of participants playing one team-challenge activity.
type Team struct {
	ID              string    `json:"id"`
	ActivityID      uuid.UUID `json:"activity_id"`
	Name            string    `json:"name"`
	MemberIDs       []string  `json:"member_ids"`
	DrawerID        string    `json:"drawer_id"`
	PromptIndex     int       `json:"prompt_index"`
	PromptCount     int       `json:"prompt_count"`
	PromptStartedAt time.Time `json:"prompt_started_at"`
	Score           int       `json:"score"`
	Done            bool      `json:"done"`
}

// Stroke is one vector path delta on a team canvas.
type Stroke struct {
	Seq    int64           `json:"seq"`
	TeamID string          `json:"team_id"`
	Data   json.RawMessage `json:"data"`
	At     time.Time       `json:"at"`
}

// Guess is one arbitrated guess in a team's rolling history.
type Guess struct {
	TeamID      string    `json:"team_id"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	Correct     bool      `json:"correct"`
	PromptIndex int       `json:"prompt_index"`
	At          time.Time `json:"at"`
}
