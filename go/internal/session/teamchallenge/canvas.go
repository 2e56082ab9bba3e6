package teamchallenge

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Drawing is the full canvas state of one team's current prompt. LastSeq is
// the highest stroke Seq the team has issued, cleared strokes included, so a
// stroke with Seq <= LastSeq is already reflected in the snapshot.
type Drawing struct {
	TeamID      string          `json:"team_id"`
	PromptIndex int             `json:"prompt_index"`
	Strokes     []models.Stroke `json:"strokes"`
	Full        json.RawMessage `json:"full,omitempty"`
	LastSeq     int64           `json:"last_seq"`
}

// AppendStroke adds a stroke delta to the team log. Only the current drawer may draw.
func (c *Coordinator) AppendStroke(activityID uuid.UUID, teamID, userID string, data json.RawMessage, now time.Time) (models.Stroke, error) {
	ts, err := c.drawerTeam(activityID, teamID, userID)
	if err != nil {
		return models.Stroke{}, err
	}
	if len(data) == 0 {
		return models.Stroke{}, apperr.Validation("stroke data is required")
	}
	ts.nextSeq++
	s := models.Stroke{Seq: ts.nextSeq, TeamID: teamID, Data: data, At: now}
	ts.strokes = append(ts.strokes, s)
	return s, nil
}

// Clear resets the team canvas
func (c *Coordinator) Clear(activityID uuid.UUID, teamID, userID string) error {
	ts, err := c.drawerTeam(activityID, teamID, userID)
	if err != nil {
		return err
	}
	ts.strokes = nil
	ts.full = nil
	return nil
}

// SaveFull stores a full canvas image supplied by the drawer
func (c *Coordinator) SaveFull(activityID uuid.UUID, teamID, userID string, data json.RawMessage) error {
	ts, err := c.drawerTeam(activityID, teamID, userID)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return apperr.Validation("drawing data is required")
	}
	ts.full = data
	return nil
}

// Drawing returns the ordered stroke snapshot of a team's canvas
func (c *Coordinator) Drawing(activityID uuid.UUID, teamID string) (Drawing, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return Drawing{}, err
	}
	return Drawing{
		TeamID:      teamID,
		PromptIndex: ts.team.PromptIndex,
		Strokes:     slices.Clone(ts.strokes),
		Full:        ts.full,
		LastSeq:     ts.nextSeq,
	}, nil
}

func (c *Coordinator) drawerTeam(activityID uuid.UUID, teamID, userID string) (*teamState, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return nil, err
	}
	if ts.team.Done {
		return nil, apperr.State("team %s has finished every prompt", teamID)
	}
	if ts.team.DrawerID != userID {
		return nil, apperr.Forbidden("only the current drawer may draw")
	}
	return ts, nil
}
