package teamchallenge

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
)

// GuessOutcome is the arbitration result of one guess
type GuessOutcome struct {
	Guess     models.Guess
	Team      models.Team // state after the guess
	DrawerID  string      // drawer of the guessed prompt
	Advanced  bool
	Remaining time.Duration
	Duration  time.Duration
}

// SubmitGuess arbitrates a guess from a non-drawer member. A correct guess
// advances the team to its next prompt. promptIndex, when set, must name the
// current prompt; a guess aimed at a prompt the team has left is rejected, so a
// resent correct guess never advances twice.
func (c *Coordinator) SubmitGuess(activityID uuid.UUID, teamID, userID, text string, promptIndex *int, now time.Time) (GuessOutcome, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return GuessOutcome{}, err
	}
	if !slices.Contains(ts.team.MemberIDs, userID) {
		return GuessOutcome{}, apperr.Forbidden("%s is not a member of team %s", userID, teamID)
	}
	if userID == ts.team.DrawerID {
		return GuessOutcome{}, apperr.Forbidden("the drawer cannot guess")
	}
	if ts.team.Done {
		return GuessOutcome{}, apperr.State("team %s has finished every prompt", teamID)
	}
	if promptIndex != nil && *promptIndex != ts.team.PromptIndex {
		return GuessOutcome{}, apperr.Validation("guess for prompt %d but team is on prompt %d", *promptIndex, ts.team.PromptIndex)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return GuessOutcome{}, apperr.Validation("guess text is required")
	}

	item := ts.activity.activity.Content[ts.team.PromptIndex]
	var key scoring.TextAnswer
	if err := json.Unmarshal(item.AnswerKey, &key); err != nil {
		return GuessOutcome{}, fmt.Errorf("decode prompt answer for %s: %w", item.ID, err)
	}

	d := c.PromptDuration(item)
	out := GuessOutcome{
		Guess: models.Guess{
			TeamID:      teamID,
			UserID:      userID,
			Text:        text,
			Correct:     scoring.MatchesAny(text, key.Answer, key.Alternates),
			PromptIndex: ts.team.PromptIndex,
			At:          now,
		},
		DrawerID:  ts.team.DrawerID,
		Duration:  d,
		Remaining: max(d-now.Sub(ts.team.PromptStartedAt), 0),
	}

	ts.guesses = append(ts.guesses, out.Guess)
	if over := len(ts.guesses) - c.cfg.GuessHistory; over > 0 {
		ts.guesses = slices.Delete(ts.guesses, 0, over)
	}

	if out.Guess.Correct {
		ts.advance(now)
		out.Advanced = true
	}
	out.Team = ts.clone()
	return out, nil
}

// Guesses returns a team's rolling guess history, oldest first
func (c *Coordinator) Guesses(activityID uuid.UUID, teamID string) ([]models.Guess, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(ts.guesses), nil
}

// Status is one member's view of their team's current prompt
type Status struct {
	Team         models.Team    `json:"team"`
	Role         string         `json:"role"` // "drawer" or "guesser"
	Category     string         `json:"category,omitempty"`
	Prompt       string         `json:"prompt,omitempty"` // drawer only
	Hints        []string       `json:"hints"`
	HintCount    int            `json:"hint_count"`
	HintRevealAt []float64      `json:"hint_reveal_at"`
	DurationSec  float64        `json:"duration_sec"`
	ElapsedSec   float64        `json:"elapsed_sec"`
	Guesses      []models.Guess `json:"guesses"`
}

// ChallengeStatus returns the team status as seen by userID at now. Only the
// drawer sees the prompt answer; everyone sees the hints revealed so far.
func (c *Coordinator) ChallengeStatus(activityID uuid.UUID, teamID, userID string, now time.Time) (Status, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Team:    ts.clone(),
		Role:    "guesser",
		Hints:   []string{},
		Guesses: slices.Clone(ts.guesses),
	}
	if userID == ts.team.DrawerID {
		st.Role = "drawer"
	}
	if ts.team.Done {
		return st, nil
	}

	item := ts.activity.activity.Content[ts.team.PromptIndex]
	var data PromptData
	if len(item.Data) > 0 {
		if err := json.Unmarshal(item.Data, &data); err != nil {
			return Status{}, fmt.Errorf("decode prompt data for %s: %w", item.ID, err)
		}
	}
	if st.Role == "drawer" {
		var key scoring.TextAnswer
		if err := json.Unmarshal(item.AnswerKey, &key); err == nil {
			st.Prompt = key.Answer
		}
	}

	d := c.PromptDuration(item)
	elapsed := max(now.Sub(ts.team.PromptStartedAt), 0)
	st.Category = data.Category
	st.Hints = VisibleHints(data.Hints, d, elapsed)
	st.HintCount = len(data.Hints)
	st.HintRevealAt = HintSchedule(len(data.Hints), d)
	st.DurationSec = d.Seconds()
	st.ElapsedSec = elapsed.Seconds()
	return st, nil
}
