// Package teamchallenge runs the nested drawing and guessing protocol of a team
// challenge activity: teams, drawer roles, the per-team canvas, hints and guesses.
package teamchallenge

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Config holds team challenge defaults
type Config struct {
	TeamSize       int
	PromptDuration time.Duration // used when a prompt has no duration of its own
	GuessHistory   int
}

// DefaultConfig returns the standard team challenge settings
func DefaultConfig() Config {
	return Config{
		TeamSize:       2,
		PromptDuration: 60 * time.Second,
		GuessHistory:   20,
	}
}

// PromptData is the public part of a prompt content item
type PromptData struct {
	Category string   `json:"category,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}

// Coordinator holds the team state of one session. Teams are keyed by activity,
// so each team challenge activity forms its own teams. It is not safe for
// concurrent use; the owning session serializes every call.
type Coordinator struct {
	cfg        Config
	activities map[uuid.UUID]*activityState
}

type activityState struct {
	activity models.Activity
	teams    []*teamState
	byID     map[string]*teamState
	byMember map[string]*teamState
}

type teamState struct {
	team     models.Team
	strokes  []models.Stroke
	nextSeq  int64
	full     json.RawMessage
	guesses  []models.Guess
	activity *activityState
}

// NewCoordinator creates an empty coordinator
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.TeamSize <= 0 {
		cfg.TeamSize = DefaultConfig().TeamSize
	}
	if cfg.PromptDuration <= 0 {
		cfg.PromptDuration = DefaultConfig().PromptDuration
	}
	if cfg.GuessHistory <= 0 {
		cfg.GuessHistory = DefaultConfig().GuessHistory
	}
	return &Coordinator{
		cfg:        cfg,
		activities: make(map[uuid.UUID]*activityState),
	}
}

// FormTeams partitions members into teams for an activity and makes each
// team's first member its drawer. When teams already exist for the activity the
// existing assignment is returned and created is false.
func (c *Coordinator) FormTeams(activity models.Activity, members []string, autoAssign bool, now time.Time) (teams []models.Team, created bool, err error) {
	if activity.Type != models.ActivityTypeTeamChallenge {
		return nil, false, apperr.State("activity %s is not a team challenge", activity.ID)
	}
	if existing, ok := c.activities[activity.ID]; ok {
		return existing.snapshot(), false, nil
	}
	if len(activity.Content) == 0 {
		return nil, false, apperr.Validation("team challenge %s has no prompts", activity.ID)
	}
	if len(members) == 0 {
		return nil, false, apperr.State("no active participants to form teams")
	}

	order := slices.Clone(members)
	if autoAssign {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	size := activity.TeamSize
	if size <= 0 {
		size = c.cfg.TeamSize
	}
	count := max(len(order)/size, 1)

	st := &activityState{
		activity: activity,
		byID:     make(map[string]*teamState),
		byMember: make(map[string]*teamState),
	}
	for i := 0; i < count; i++ {
		ts := &teamState{
			team: models.Team{
				ID:              uuid.New().String(),
				ActivityID:      activity.ID,
				Name:            fmt.Sprintf("Team %d", i+1),
				PromptCount:     len(activity.Content),
				PromptStartedAt: now,
			},
			activity: st,
		}
		st.teams = append(st.teams, ts)
		st.byID[ts.team.ID] = ts
	}
	for i, m := range order {
		ts := st.teams[i%count]
		ts.team.MemberIDs = append(ts.team.MemberIDs, m)
		st.byMember[m] = ts
	}
	for _, ts := range st.teams {
		ts.team.DrawerID = ts.team.MemberIDs[0]
	}

	c.activities[activity.ID] = st
	return st.snapshot(), true, nil
}

// Teams returns the teams formed for an activity
func (c *Coordinator) Teams(activityID uuid.UUID) []models.Team {
	st, ok := c.activities[activityID]
	if !ok {
		return nil
	}
	return st.snapshot()
}

// Team returns one team
func (c *Coordinator) Team(activityID uuid.UUID, teamID string) (models.Team, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return models.Team{}, err
	}
	return ts.clone(), nil
}

// TeamOf returns the team a member plays on in an activity
func (c *Coordinator) TeamOf(activityID uuid.UUID, userID string) (models.Team, bool) {
	st, ok := c.activities[activityID]
	if !ok {
		return models.Team{}, false
	}
	ts, ok := st.byMember[userID]
	if !ok {
		return models.Team{}, false
	}
	return ts.clone(), true
}

// AllDone reports whether every team has finished its prompts
func (c *Coordinator) AllDone(activityID uuid.UUID) bool {
	st, ok := c.activities[activityID]
	if !ok {
		return false
	}
	for _, ts := range st.teams {
		if !ts.team.Done {
			return false
		}
	}
	return true
}

// SwitchDrawer hands the drawer role to another member. Only the current drawer
// or the session owner may do this. It returns the previous drawer.
func (c *Coordinator) SwitchDrawer(activityID uuid.UUID, teamID, requester string, isOwner bool, newDrawerID string) (string, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return "", err
	}
	if !isOwner && requester != ts.team.DrawerID {
		return "", apperr.Forbidden("only the current drawer or the session owner may switch drawer")
	}
	if !slices.Contains(ts.team.MemberIDs, newDrawerID) {
		return "", apperr.Validation("%s is not a member of team %s", newDrawerID, teamID)
	}
	prev := ts.team.DrawerID
	ts.team.DrawerID = newDrawerID
	return prev, nil
}

// RemoveMember drops a participant from their team in one activity. A
// departing drawer hands the role to the next member and a team left with no
// members is finished. It returns the team when its drawer changed.
func (c *Coordinator) RemoveMember(activityID uuid.UUID, userID string) []models.Team {
	st, ok := c.activities[activityID]
	if !ok {
		return nil
	}
	ts, ok := st.byMember[userID]
	if !ok {
		return nil
	}
	delete(st.byMember, userID)
	idx := slices.Index(ts.team.MemberIDs, userID)
	ts.team.MemberIDs = slices.Delete(ts.team.MemberIDs, idx, idx+1)
	if ts.team.DrawerID != userID {
		return nil
	}
	ts.team.DrawerID = ""
	if len(ts.team.MemberIDs) > 0 {
		ts.team.DrawerID = ts.team.MemberIDs[idx%len(ts.team.MemberIDs)]
	} else {
		ts.team.Done = true
	}
	return []models.Team{ts.clone()}
}

// AddScore credits points to a team
func (c *Coordinator) AddScore(activityID uuid.UUID, teamID string, points int) {
	if ts, err := c.team(activityID, teamID); err == nil {
		ts.team.Score += points
	}
}

// PromptDuration returns how long a prompt runs
func (c *Coordinator) PromptDuration(item models.ContentItem) time.Duration {
	if item.DurationSec > 0 {
		return time.Duration(item.DurationSec) * time.Second
	}
	return c.cfg.PromptDuration
}

// CurrentPrompt returns the prompt a team is working on
func (c *Coordinator) CurrentPrompt(activityID uuid.UUID, teamID string) (models.ContentItem, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return models.ContentItem{}, err
	}
	if ts.team.Done {
		return models.ContentItem{}, apperr.State("team %s has finished every prompt", teamID)
	}
	return ts.activity.activity.Content[ts.team.PromptIndex], nil
}

// AdvancePrompt moves a team past expectedIndex, rotating the drawer and
// clearing the canvas. It is a no-op returning false when the team has already
// moved on, so a late timer cannot skip a prompt twice.
func (c *Coordinator) AdvancePrompt(activityID uuid.UUID, teamID string, expectedIndex int, now time.Time) (models.Team, bool, error) {
	ts, err := c.team(activityID, teamID)
	if err != nil {
		return models.Team{}, false, err
	}
	if ts.team.Done || ts.team.PromptIndex != expectedIndex {
		return ts.clone(), false, nil
	}
	ts.advance(now)
	return ts.clone(), true, nil
}

func (ts *teamState) advance(now time.Time) {
	ts.team.PromptIndex++
	ts.team.PromptStartedAt = now
	ts.strokes = nil
	ts.full = nil
	if ts.team.PromptIndex >= ts.team.PromptCount {
		ts.team.Done = true
		return
	}
	if n := len(ts.team.MemberIDs); n > 1 {
		i := slices.Index(ts.team.MemberIDs, ts.team.DrawerID)
		ts.team.DrawerID = ts.team.MemberIDs[(i+1)%n]
	}
}

func (c *Coordinator) team(activityID uuid.UUID, teamID string) (*teamState, error) {
	st, ok := c.activities[activityID]
	if !ok {
		return nil, apperr.NotFound("no teams formed for activity %s", activityID)
	}
	ts, ok := st.byID[teamID]
	if !ok {
		return nil, apperr.NotFound("team %s", teamID)
	}
	return ts, nil
}

func (st *activityState) snapshot() []models.Team {
	out := make([]models.Team, 0, len(st.teams))
	for _, ts := range st.teams {
		out = append(out, ts.clone())
	}
	return out
}

func (ts *teamState) clone() models.Team {
	t := ts.team
	t.MemberIDs = slices.Clone(ts.team.MemberIDs)
	return t
}
