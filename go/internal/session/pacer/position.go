// Package pacer computes content positions and schedules the timers that advance them.
package pacer

import (
	"fmt"
	"time"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// Position identifies the one active content item of a session
type Position struct {
	ActivityIndex int `json:"activity_index"`
	ContentIndex  int `json:"content_index"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d", p.ActivityIndex, p.ContentIndex)
}

// Before reports whether p comes earlier in a game than q
func (p Position) Before(q Position) bool {
	if p.ActivityIndex != q.ActivityIndex {
		return p.ActivityIndex < q.ActivityIndex
	}
	return p.ContentIndex < q.ContentIndex
}

// playable reports whether an activity has anything to pace through
func playable(a models.Activity) bool {
	return len(a.Content) > 0
}

// First returns the first playable position of a game
func First(game *models.Game) (Position, bool) {
	return nextActivity(game, -1)
}

// Next returns the position after pos: the next content item of the current
// activity, else the first item of the next playable activity. It returns false
// when the game is exhausted. A team challenge occupies a single position; its
// content items are the team prompt list.
func Next(game *models.Game, pos Position) (Position, bool) {
	if pos.ActivityIndex < 0 || pos.ActivityIndex >= len(game.Activities) {
		return Position{}, false
	}
	act := game.Activities[pos.ActivityIndex]
	if act.Type != models.ActivityTypeTeamChallenge && pos.ContentIndex+1 < len(act.Content) {
		return Position{ActivityIndex: pos.ActivityIndex, ContentIndex: pos.ContentIndex + 1}, true
	}
	return nextActivity(game, pos.ActivityIndex)
}

func nextActivity(game *models.Game, after int) (Position, bool) {
	for i := after + 1; i < len(game.Activities); i++ {
		if playable(game.Activities[i]) {
			return Position{ActivityIndex: i}, true
		}
	}
	return Position{}, false
}

// Playable reports whether a game has at least one position
func Playable(game *models.Game) bool {
	_, ok := First(game)
	return ok
}

// Resolve returns the activity and content item at pos
func Resolve(game *models.Game, pos Position) (*models.Activity, *models.ContentItem, error) {
	if pos.ActivityIndex < 0 || pos.ActivityIndex >= len(game.Activities) {
		return nil, nil, fmt.Errorf("activity index %d out of range", pos.ActivityIndex)
	}
	act := &game.Activities[pos.ActivityIndex]
	if pos.ContentIndex < 0 || pos.ContentIndex >= len(act.Content) {
		return nil, nil, fmt.Errorf("content index %d out of range for activity %s", pos.ContentIndex, act.ID)
	}
	return act, &act.Content[pos.ContentIndex], nil
}

// Duration returns how long pos runs before the timer advances it. Zero means
// the position only advances on an explicit trigger. A team challenge uses the
// activity duration.
func Duration(game *models.Game, pos Position) time.Duration {
	act, item, err := Resolve(game, pos)
	if err != nil {
		return 0
	}
	if act.Type == models.ActivityTypeTeamChallenge {
		return time.Duration(act.DurationSec) * time.Second
	}
	return time.Duration(item.DurationSec) * time.Second
}
