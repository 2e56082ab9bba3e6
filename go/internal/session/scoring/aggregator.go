// Package scoring grades submissions and keeps the ranked leaderboard of one session.
package scoring

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Config holds the point rules
type Config struct {
	BasePoints   int // awarded for any correct answer
	MaxTimeBonus int // scaled by the share of time remaining
}

// DefaultConfig returns the standard point rules
func DefaultConfig() Config {
	return Config{BasePoints: 100, MaxTimeBonus: 50}
}

// Points returns the score for an answer given the time left on its content item.
// Untimed content earns the base only.
func (c Config) Points(correct bool, remaining, duration time.Duration) int {
	if !correct {
		return 0
	}
	if duration <= 0 {
		return c.BasePoints
	}
	remaining = min(max(remaining, 0), duration)
	bonus := float64(c.MaxTimeBonus) * float64(remaining) / float64(duration)
	return c.BasePoints + int(bonus)
}

// SubmitInput is one answer to grade
type SubmitInput struct {
	UserID          string
	ActivityType    models.ActivityType
	ActivityID      uuid.UUID
	Item            models.ContentItem
	ContentIndex    int
	Answer          json.RawMessage
	ClientRemaining time.Duration
	ServerRemaining time.Duration
	Duration        time.Duration
	At              time.Time
}

// Result is what a submitter learns about their answer
type Result struct {
	Submission  models.Submission
	Explanation string
	Duplicate   bool
}

type ledgerKey struct {
	userID       string
	activityID   uuid.UUID
	contentIndex int
}

type standing struct {
	userID      string
	displayName string
	joinSeq     int
	present     bool
	score       int
	correct     int
	incorrect   int
}

// Aggregator is the score ledger of one session. It is not safe for concurrent
// use; the owning session serializes every call.
type Aggregator struct {
	cfg         Config
	standings   map[string]*standing
	ledger      map[ledgerKey]int // index into submissions
	submissions []models.Submission
	nextJoinSeq int
}

// NewAggregator creates an empty ledger
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		standings: make(map[string]*standing),
		ledger:    make(map[ledgerKey]int),
	}
}

// Config returns the point rules in use
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Register adds a participant to the leaderboard. Registering again refreshes the
// display name and restores a participant who left, keeping their score and join order.
func (a *Aggregator) Register(userID, displayName string) {
	if s, ok := a.standings[userID]; ok {
		s.displayName = displayName
		s.present = true
		return
	}
	a.standings[userID] = &standing{
		userID:      userID,
		displayName: displayName,
		joinSeq:     a.nextJoinSeq,
		present:     true,
	}
	a.nextJoinSeq++
}

// Unregister hides a participant from the leaderboard
func (a *Aggregator) Unregister(userID string) {
	if s, ok := a.standings[userID]; ok {
		s.present = false
	}
}

// Lookup returns a recorded submission for a user at a position
func (a *Aggregator) Lookup(userID string, activityID uuid.UUID, contentIndex int) (models.Submission, bool) {
	i, ok := a.ledger[ledgerKey{userID, activityID, contentIndex}]
	if !ok {
		return models.Submission{}, false
	}
	return a.submissions[i], true
}

// Submit grades and records an answer. A second submission for the same user and
// position returns the first result unchanged.
func (a *Aggregator) Submit(in SubmitInput) (Result, error) {
	s, ok := a.standings[in.UserID]
	if !ok || !s.present {
		return Result{}, fmt.Errorf("participant %s is not registered", in.UserID)
	}

	if prior, ok := a.Lookup(in.UserID, in.ActivityID, in.ContentIndex); ok {
		return Result{Submission: prior, Explanation: explanation(in.Item.AnswerKey), Duplicate: true}, nil
	}

	grade, err := GradeAnswer(in.ActivityType, in.Item, in.Answer)
	if err != nil {
		return Result{}, err
	}

	remaining := in.ServerRemaining
	if in.ClientRemaining >= 0 && in.ClientRemaining < remaining {
		remaining = in.ClientRemaining
	}

	sub := models.Submission{
		ID:            uuid.New(),
		UserID:        in.UserID,
		ActivityID:    in.ActivityID,
		ContentID:     in.Item.ID,
		ContentIndex:  in.ContentIndex,
		Answer:        in.Answer,
		TimeRemaining: remaining.Seconds(),
		Correct:       grade.Correct,
		PointsEarned:  a.cfg.Points(grade.Correct, remaining, in.Duration),
		SubmittedAt:   in.At,
	}

	a.ledger[ledgerKey{in.UserID, in.ActivityID, in.ContentIndex}] = len(a.submissions)
	a.submissions = append(a.submissions, sub)
	a.apply(s, sub.PointsEarned, sub.Correct)

	return Result{Submission: sub, Explanation: grade.Explanation}, nil
}

// Award credits points outside the submission ledger, e.g. a correct team guess
func (a *Aggregator) Award(userID string, points int) {
	if s, ok := a.standings[userID]; ok {
		s.score += points
	}
}

// Tally counts an answer outcome outside the submission ledger
func (a *Aggregator) Tally(userID string, correct bool) {
	if s, ok := a.standings[userID]; ok {
		a.apply(s, 0, correct)
	}
}

func (a *Aggregator) apply(s *standing, points int, correct bool) {
	s.score += points
	if correct {
		s.correct++
	} else {
		s.incorrect++
	}
}

// Score returns a participant's current score
func (a *Aggregator) Score(userID string) int {
	if s, ok := a.standings[userID]; ok {
		return s.score
	}
	return 0
}

// Submissions returns a copy of the append-only ledger
func (a *Aggregator) Submissions() []models.Submission {
	out := make([]models.Submission, len(a.submissions))
	copy(out, a.submissions)
	return out
}

// Leaderboard returns the ranked snapshot of present participants.
//
// Order: score desc, then correct count desc, then join order, then user id.
// Rank is 1 + the number of entries with a strictly greater score, so ties share a rank.
func (a *Aggregator) Leaderboard() []models.LeaderboardEntry {
	rows := make([]*standing, 0, len(a.standings))
	for _, s := range a.standings {
		if s.present {
			rows = append(rows, s)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		if x.score != y.score {
			return x.score > y.score
		}
		if x.correct != y.correct {
			return x.correct > y.correct
		}
		if x.joinSeq != y.joinSeq {
			return x.joinSeq < y.joinSeq
		}
		return x.userID < y.userID
	})

	entries := make([]models.LeaderboardEntry, len(rows))
	rank := 1
	for i, s := range rows {
		if i > 0 && s.score < rows[i-1].score {
			rank = i + 1
		}
		entries[i] = models.LeaderboardEntry{
			UserID:         s.userID,
			DisplayName:    s.displayName,
			Score:          s.score,
			CorrectCount:   s.correct,
			IncorrectCount: s.incorrect,
			Rank:           rank,
		}
	}
	return entries
}
