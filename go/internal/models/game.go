package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ActivityType is the tagged variant that selects how an activity is graded.
type ActivityType string

const (
	ActivityTypeMultipleChoice ActivityType = "MULTIPLE_CHOICE"
	ActivityTypeTrueFalse      ActivityType = "TRUE_FALSE"
	ActivityTypeOpenEnded      ActivityType = "OPEN_ENDED"
	ActivityTypeFillInBlank    ActivityType = "FILL_IN_BLANK"
	ActivityTypeSorting        ActivityType = "SORTING"
	ActivityTypeMatching       ActivityType = "MATCHING"
	ActivityTypeMathProblem    ActivityType = "MATH_PROBLEM"
	ActivityTypeTeamChallenge  ActivityType = "TEAM_CHALLENGE"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeMultipleChoice, ActivityTypeTrueFalse, ActivityTypeOpenEnded,
		ActivityTypeFillInBlank, ActivityTypeSorting, ActivityTypeMatching,
		ActivityTypeMathProblem, ActivityTypeTeamChallenge:
		return true
	default:
		return false
	}
}

// Game is an ordered list of activities owned by a teacher.
type Game struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	OwnerID    string     `json:"owner_id"`
	Activities []Activity `json:"activities"`
}

// Activity is one graded task within a game.
type Activity struct {
	ID           uuid.UUID     `json:"id"`
	Type         ActivityType  `json:"type"`
	Title        string        `json:"title"`
	Instructions string        `json:"instructions,omitempty"`
	DurationSec  int           `json:"duration_sec,omitempty"`
	TeamSize     int           `json:"team_size,omitempty"`    // team challenge only
	GuessPoints  int           `json:"guess_points,omitempty"` // team challenge only
	Content      []ContentItem `json:"content"`
}

// ContentItem is one paced unit within an activity. AnswerKey never leaves the server.
type ContentItem struct {
	ID          uuid.UUID       `json:"id"`
	Data        json.RawMessage `json:"data,omitempty"`
	AnswerKey   json.RawMessage `json:"-"`
	DurationSec int             `json:"duration_sec"`
}

// Class groups students under a teacher.
type Class struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID string    `json:"owner_id"`
}
