package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
)

// Prompt advance reasons
const (
	PromptFormed  = "formed"
	PromptGuessed = "guessed"
	PromptTimeout = "timeout"
	PromptSkipped = "skipped"
)

const (
	promptKeyPrefix = "prompt:"
	saveKeyPrefix   = "save:"
)

func promptKey(teamID string) string {
	return promptKeyPrefix + teamID + ":"
}

func saveKey(teamID string) string {
	return saveKeyPrefix + teamID
}

// GuessResult is the outcome of a guess as seen by the guesser
type GuessResult struct {
	Correct      bool        `json:"correct"`
	PointsEarned int         `json:"points_earned"`
	Team         models.Team `json:"team"`
}

// teamActivityLocked returns the current activity when it is a team challenge
func (s *Session) teamActivityLocked() (*models.Activity, error) {
	if s.info.Status != models.SessionStatusActive {
		return nil, apperr.State("session %s is %s", s.info.AccessCode, s.info.Status)
	}
	act, _ := s.current()
	if act == nil || act.Type != models.ActivityTypeTeamChallenge {
		return nil, apperr.State("current activity is not a team challenge")
	}
	return act, nil
}

// FormTeams partitions the active participants into teams for the current team
// challenge. Calling it again returns the teams already formed.
func (m *Manager) FormTeams(ctx context.Context, code, actor string, autoAssign bool) ([]models.Team, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOwner(actor) {
		return nil, apperr.Forbidden("only the session owner may form teams")
	}
	act, err := s.teamActivityLocked()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	teams, created, err := s.teams.FormTeams(*act, s.activeMembers(), autoAssign, now)
	if err != nil {
		return nil, fmt.Errorf("failed to form teams: %w", err)
	}
	if !created {
		return teams, nil
	}

	m.publish(broadcast.SessionTopic(code, broadcast.KindTeams), events.TeamsPayload{
		ActivityID: act.ID.String(),
		Teams:      teams,
	})
	for _, team := range teams {
		m.promptStartedLocked(s, act.ID, team, PromptFormed)
	}

	log.Info().
		Str("access_code", code).
		Str("activity_id", act.ID.String()).
		Int("teams", len(teams)).
		Msg("formed teams")
	return teams, nil
}

// Teams returns the teams of the most recent team challenge
func (m *Manager) Teams(ctx context.Context, code string) ([]models.Team, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teamActivityID == uuid.Nil {
		return []models.Team{}, nil
	}
	teams := s.teams.Teams(s.teamActivityID)
	if teams == nil {
		teams = []models.Team{}
	}
	return teams, nil
}

// ChallengeStatus returns a member's view of their team's current prompt
func (m *Manager) ChallengeStatus(ctx context.Context, code, userID, teamID string) (*teamchallenge.Status, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teamActivityID == uuid.Nil {
		return nil, apperr.NotFound("no team challenge in session %s", code)
	}
	team, err := s.teams.Team(s.teamActivityID, teamID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(team.MemberIDs, userID) && !s.isOwner(userID) {
		return nil, apperr.Forbidden("%s is not a member of team %s", userID, teamID)
	}
	st, err := s.teams.ChallengeStatus(s.teamActivityID, teamID, userID, m.clock.Now())
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SubmitGuess arbitrates a guess. A correct guess scores the guesser and the
// drawer and moves the team to its next prompt exactly once.
func (m *Manager) SubmitGuess(ctx context.Context, code, userID, teamID, text string, promptIndex *int) (*GuessResult, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return nil, err
	}
	out, err := s.teams.SubmitGuess(act.ID, teamID, userID, text, promptIndex, m.clock.Now())
	if err != nil {
		return nil, err
	}

	var points int
	if out.Guess.Correct {
		points = guessPoints(*act, m.cfg.Scoring, out.Remaining, out.Duration)
		drawerPoints := points / 2
		s.scores.Award(userID, points)
		s.scores.Tally(userID, true)
		s.scores.Award(out.DrawerID, drawerPoints)
		s.teams.AddScore(act.ID, teamID, points+drawerPoints)
		out.Team.Score += points + drawerPoints
	}

	m.publish(broadcast.TeamTopic(code, teamID, broadcast.KindGuessResult), events.GuessResultPayload{
		TeamID:       teamID,
		UserID:       userID,
		Text:         out.Guess.Text,
		Correct:      out.Guess.Correct,
		PromptIndex:  out.Guess.PromptIndex,
		PointsEarned: points,
	})

	if out.Advanced {
		m.publishLeaderboardLocked(s)
		m.promptStartedLocked(s, act.ID, out.Team, PromptGuessed)
		m.checkTeamsDoneLocked(s)
	}

	log.Info().
		Str("access_code", code).
		Str("team_id", teamID).
		Str("user_id", userID).
		Bool("correct", out.Guess.Correct).
		Msg("guess submitted")

	return &GuessResult{Correct: out.Guess.Correct, PointsEarned: points, Team: out.Team}, nil
}

// SkipPrompt moves a team past promptIndex. The team's drawer or the session
// owner may skip; a skip naming a prompt already left is a no-op.
func (m *Manager) SkipPrompt(ctx context.Context, code, actor, teamID string, promptIndex int) (*models.Team, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return nil, err
	}
	team, err := s.teams.Team(act.ID, teamID)
	if err != nil {
		return nil, err
	}
	if actor != team.DrawerID && !s.isOwner(actor) {
		return nil, apperr.Forbidden("only the drawer or the session owner may skip a prompt")
	}

	team, advanced, err := s.teams.AdvancePrompt(act.ID, teamID, promptIndex, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if advanced {
		m.promptStartedLocked(s, act.ID, team, PromptSkipped)
		m.checkTeamsDoneLocked(s)
	}
	return &team, nil
}

// SwitchDrawer hands the drawer role to another team member
func (m *Manager) SwitchDrawer(ctx context.Context, code, actor, teamID, newDrawerID string) (*models.Team, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return nil, err
	}
	prev, err := s.teams.SwitchDrawer(act.ID, teamID, actor, s.isOwner(actor), newDrawerID)
	if err != nil {
		return nil, err
	}
	team, err := s.teams.Team(act.ID, teamID)
	if err != nil {
		return nil, err
	}

	m.publish(broadcast.TeamTopic(code, teamID, broadcast.KindRoles), events.RolesPayload{
		TeamID:     teamID,
		DrawerID:   newDrawerID,
		PreviousID: prev,
		ChangedBy:  actor,
	})
	log.Info().
		Str("access_code", code).
		Str("team_id", teamID).
		Str("drawer_id", newDrawerID).
		Str("previous_id", prev).
		Msg("drawer switched")
	return &team, nil
}

// DrawStroke appends a stroke to the team canvas and schedules a save
func (m *Manager) DrawStroke(ctx context.Context, code, actor, teamID string, data json.RawMessage) (*models.Stroke, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	stroke, err := s.teams.AppendStroke(act.ID, teamID, actor, data, now)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(stroke)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stroke: %w", err)
	}
	m.publish(broadcast.TeamTopic(code, teamID, broadcast.KindDrawing), events.DrawingPayload{
		Type: events.DrawingStroke,
		Data: raw,
	})
	m.scheduleSaveLocked(s, act.ID, teamID, now)
	return &stroke, nil
}

// ClearDrawing empties the team canvas
func (m *Manager) ClearDrawing(ctx context.Context, code, actor, teamID string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return err
	}
	if err := s.teams.Clear(act.ID, teamID, actor); err != nil {
		return err
	}
	m.publish(broadcast.TeamTopic(code, teamID, broadcast.KindDrawing), events.DrawingPayload{
		Type: events.DrawingClear,
	})
	m.scheduleSaveLocked(s, act.ID, teamID, m.clock.Now())
	return nil
}

// SaveDrawing stores a full canvas image from the drawer and persists it at once
func (m *Manager) SaveDrawing(ctx context.Context, code, actor, teamID string, data json.RawMessage) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil {
		return err
	}
	if err := s.teams.SaveFull(act.ID, teamID, actor, data); err != nil {
		return err
	}
	m.publish(broadcast.TeamTopic(code, teamID, broadcast.KindDrawing), events.DrawingPayload{
		Type: events.DrawingFull,
		Data: data,
	})
	s.timers.Cancel(saveKey(teamID))
	m.persistDrawingLocked(s, act.ID, teamID)
	return nil
}

// GetDrawing returns the ordered stroke snapshot of a team canvas
func (m *Manager) GetDrawing(ctx context.Context, code, userID, teamID string) (*teamchallenge.Drawing, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teamActivityID == uuid.Nil {
		return nil, apperr.NotFound("no team challenge in session %s", code)
	}
	if _, ok := s.participants[userID]; !ok && !s.isOwner(userID) {
		return nil, apperr.Forbidden("%s is not in session %s", userID, code)
	}
	d, err := s.teams.Drawing(s.teamActivityID, teamID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// promptStartedLocked announces a team's new prompt and arms its timeout
func (m *Manager) promptStartedLocked(s *Session, activityID uuid.UUID, team models.Team, reason string) {
	code := s.info.AccessCode
	s.timers.CancelPrefix(promptKey(team.ID))

	var d time.Duration
	if !team.Done {
		if item, err := s.teams.CurrentPrompt(activityID, team.ID); err == nil {
			d = s.teams.PromptDuration(item)
		}
	}

	m.publish(broadcast.TeamTopic(code, team.ID, broadcast.KindPromptAdvance), events.PromptAdvancePayload{
		TeamID:          team.ID,
		PromptIndex:     team.PromptIndex,
		PromptCount:     team.PromptCount,
		PromptStartedAt: team.PromptStartedAt,
		DurationSec:     int(d / time.Second),
		DrawerID:        team.DrawerID,
		Reason:          reason,
		Done:            team.Done,
	})
	if reason != PromptFormed {
		m.publish(broadcast.TeamTopic(code, team.ID, broadcast.KindDrawing), events.DrawingPayload{
			Type: events.DrawingClear,
		})
	}

	if team.Done || d <= 0 {
		return
	}
	teamID, idx := team.ID, team.PromptIndex
	key := fmt.Sprintf("%s%d", promptKey(teamID), idx)
	s.timers.Schedule(key, team.PromptStartedAt, d, func() {
		m.onPromptTimer(code, activityID, teamID, idx)
	})
}

// onPromptTimer skips a prompt nobody guessed in time
func (m *Manager) onPromptTimer(code string, activityID uuid.UUID, teamID string, promptIndex int) {
	s, err := m.lookup(code)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	act, err := s.teamActivityLocked()
	if err != nil || act.ID != activityID {
		return
	}
	team, advanced, err := s.teams.AdvancePrompt(activityID, teamID, promptIndex, m.clock.Now())
	if err != nil || !advanced {
		return
	}
	log.Debug().
		Str("access_code", code).
		Str("team_id", teamID).
		Int("prompt_index", promptIndex).
		Msg("prompt timed out")
	m.promptStartedLocked(s, activityID, team, PromptTimeout)
	m.checkTeamsDoneLocked(s)
}

// checkTeamsDoneLocked advances the session once every team has finished
func (m *Manager) checkTeamsDoneLocked(s *Session) {
	act, err := s.teamActivityLocked()
	if err != nil || !s.teams.AllDone(act.ID) {
		return
	}
	log.Info().
		Str("access_code", s.info.AccessCode).
		Str("activity_id", act.ID.String()).
		Msg("all teams finished")
	m.advanceLocked(s, s.position())
}

// scheduleSaveLocked persists the canvas once drawing pauses for SaveDebounce
func (m *Manager) scheduleSaveLocked(s *Session, activityID uuid.UUID, teamID string, at time.Time) {
	if m.drawings == nil {
		return
	}
	code := s.info.AccessCode
	s.timers.Schedule(saveKey(teamID), at, m.cfg.SaveDebounce, func() {
		cur, err := m.lookup(code)
		if err != nil {
			return
		}
		cur.mu.Lock()
		defer cur.mu.Unlock()
		m.persistDrawingLocked(cur, activityID, teamID)
	})
}

// persistDrawingLocked snapshots the canvas and writes it off the lock
func (m *Manager) persistDrawingLocked(s *Session, activityID uuid.UUID, teamID string) {
	if m.drawings == nil {
		return
	}
	d, err := s.teams.Drawing(activityID, teamID)
	if err != nil {
		return
	}
	code := s.info.AccessCode
	m.background("save_drawing", func(ctx context.Context) error {
		return m.drawings.SaveDrawing(ctx, code, d)
	})
}

// guessPoints scores a correct guess. An activity's guess points replace the
// base award and scale the time bonus.
func guessPoints(act models.Activity, cfg scoring.Config, remaining, d time.Duration) int {
	if act.GuessPoints > 0 {
		cfg = scoring.Config{BasePoints: act.GuessPoints, MaxTimeBonus: act.GuessPoints / 2}
	}
	return cfg.Points(true, remaining, d)
}
