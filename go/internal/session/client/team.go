package client

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
)

// TeamState is the client's view of the team it follows in a team challenge
type TeamState struct {
	TeamID          string
	PromptIndex     int
	PromptCount     int
	PromptStartedAt time.Time
	DurationSec     int
	DrawerID        string
	Done            bool

	// Hints as of the last status pull; cleared on every new prompt
	Hints   []string
	Guesses []models.Guess

	Strokes []models.Stroke
	Full    json.RawMessage
	// LastSeq is the highest stroke Seq seen; older strokes are duplicates
	LastSeq int64
}

func (t TeamState) clone() TeamState {
	t.Hints = slices.Clone(t.Hints)
	t.Guesses = slices.Clone(t.Guesses)
	t.Strokes = slices.Clone(t.Strokes)
	return t
}

// newPrompt drops everything tied to the previous prompt
func (t *TeamState) newPrompt() {
	t.Hints = nil
	t.Guesses = nil
	t.Strokes = nil
	t.Full = nil
}

// FollowTeam selects the team whose topics the replica applies. An empty id
// stops following. Following a different team drops the old team's state.
func (r *Replica) FollowTeam(teamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case teamID == "":
		r.st.Team = nil
	case r.st.Team == nil || r.st.Team.TeamID != teamID:
		r.st.Team = &TeamState{TeamID: teamID}
	}
}

// TeamID returns the followed team, or "" when none
func (r *Replica) TeamID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.st.Team == nil {
		return ""
	}
	return r.st.Team.TeamID
}

// SetLeaderboard replaces the leaderboard with a pulled one
func (r *Replica) SetLeaderboard(entries []models.LeaderboardEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Leaderboard = entries
}

// SetChallengeStatus merges a pulled team status unless the team has already
// moved past its prompt
func (r *Replica) SetChallengeStatus(st teamchallenge.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tm := r.st.Team
	if tm == nil || tm.TeamID != st.Team.ID || st.Team.PromptIndex < tm.PromptIndex {
		return false
	}
	if st.Team.PromptIndex > tm.PromptIndex {
		tm.newPrompt()
	}
	tm.PromptIndex = st.Team.PromptIndex
	tm.PromptCount = st.Team.PromptCount
	tm.PromptStartedAt = st.Team.PromptStartedAt
	tm.DrawerID = st.Team.DrawerID
	tm.Done = st.Team.Done
	tm.DurationSec = int(st.DurationSec)
	tm.Hints = slices.Clone(st.Hints)
	tm.Guesses = slices.Clone(st.Guesses)
	return true
}

// ResetDrawing replaces the followed team's canvas with a snapshot. Strokes
// already applied past the snapshot's LastSeq are kept after it.
func (r *Replica) ResetDrawing(d teamchallenge.Drawing) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tm := r.st.Team
	if tm == nil || tm.TeamID != d.TeamID || d.PromptIndex < tm.PromptIndex {
		return false
	}
	var newer []models.Stroke
	if d.PromptIndex > tm.PromptIndex {
		tm.newPrompt()
		tm.PromptIndex = d.PromptIndex
	} else {
		for _, s := range tm.Strokes {
			if s.Seq > d.LastSeq {
				newer = append(newer, s)
			}
		}
	}
	tm.Strokes = append(slices.Clone(d.Strokes), newer...)
	tm.Full = d.Full
	tm.LastSeq = max(tm.LastSeq, d.LastSeq)
	return true
}

// applyTeamLocked folds a team topic message into the followed team
func (r *Replica) applyTeamLocked(msg broadcast.Message) (bool, error) {
	tm := r.st.Team
	if tm == nil || msg.Topic != broadcast.TeamTopic(r.st.AccessCode, tm.TeamID, msg.Kind) {
		return false, nil
	}

	switch msg.Kind {
	case broadcast.KindDrawing:
		var p events.DrawingPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode drawing: %w", err)
		}
		switch p.Type {
		case events.DrawingStroke:
			var s models.Stroke
			if err := json.Unmarshal(p.Data, &s); err != nil {
				return false, fmt.Errorf("decode stroke: %w", err)
			}
			if s.Seq <= tm.LastSeq {
				return false, nil
			}
			tm.Strokes = append(tm.Strokes, s)
			tm.LastSeq = s.Seq
		case events.DrawingClear:
			if len(tm.Strokes) == 0 && len(tm.Full) == 0 {
				return false, nil
			}
			tm.Strokes = nil
			tm.Full = nil
		case events.DrawingFull:
			tm.Full = p.Data
		default:
			return false, nil
		}
		return true, nil

	case broadcast.KindPromptAdvance:
		var p events.PromptAdvancePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode prompt advance: %w", err)
		}
		if p.PromptIndex < tm.PromptIndex {
			return false, nil
		}
		samePrompt := p.PromptIndex == tm.PromptIndex && p.PromptStartedAt.Equal(tm.PromptStartedAt)
		if samePrompt && p.Done == tm.Done && p.DrawerID == tm.DrawerID {
			return false, nil
		}
		if !samePrompt {
			tm.newPrompt()
		}
		tm.PromptIndex = p.PromptIndex
		tm.PromptCount = p.PromptCount
		tm.PromptStartedAt = p.PromptStartedAt
		tm.DurationSec = p.DurationSec
		tm.DrawerID = p.DrawerID
		tm.Done = p.Done
		return true, nil

	case broadcast.KindGuessResult:
		var p events.GuessResultPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode guess result: %w", err)
		}
		if p.PromptIndex != tm.PromptIndex {
			return false, nil
		}
		tm.Guesses = append(tm.Guesses, models.Guess{
			TeamID:      p.TeamID,
			UserID:      p.UserID,
			Text:        p.Text,
			Correct:     p.Correct,
			PromptIndex: p.PromptIndex,
			At:          msg.Timestamp,
		})
		return true, nil

	case broadcast.KindRoles:
		var p events.RolesPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode roles: %w", err)
		}
		if p.DrawerID == tm.DrawerID {
			return false, nil
		}
		tm.DrawerID = p.DrawerID
		return true, nil
	}
	return false, nil
}
