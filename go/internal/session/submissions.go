package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/pacer"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
	"github.com/rs/zerolog/log"
)

// Reasons a submission is not accepted
const (
	RejectStale     = "stale"
	RejectNotActive = "not_active"
)

// SubmitRequest is one answer from a participant
type SubmitRequest struct {
	UserID       string
	ActivityID   uuid.UUID
	ContentID    uuid.UUID // optional; checked when set
	ContentIndex int
	Answer       json.RawMessage
	// TimeRemaining is the client's view of seconds left; nil when unknown
	TimeRemaining *float64
}

// SubmitResult tells the submitter how their answer was handled. Valid is false
// when the answer targeted content the session is no longer on; nothing is
// recorded in that case.
type SubmitResult struct {
	Valid        bool               `json:"valid"`
	Reason       string             `json:"reason,omitempty"`
	Correct      bool               `json:"correct"`
	PointsEarned int                `json:"points_earned"`
	Explanation  string             `json:"explanation,omitempty"`
	Duplicate    bool               `json:"duplicate,omitempty"`
	Submission   *models.Submission `json:"submission,omitempty"`
}

// Submit grades an answer against the current content item
func (m *Manager) Submit(ctx context.Context, code string, req SubmitRequest) (*SubmitResult, error) {
	if len(req.Answer) == 0 {
		return nil, apperr.Validation("answer is required")
	}

	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[req.UserID]; !ok {
		return nil, apperr.Forbidden("%s is not a participant of session %s", req.UserID, code)
	}

	// a retry of an answer already recorded gets the recorded result back,
	// even when the session has moved on since
	if prior, ok := s.scores.Lookup(req.UserID, req.ActivityID, req.ContentIndex); ok {
		return &SubmitResult{
			Valid:        true,
			Correct:      prior.Correct,
			PointsEarned: prior.PointsEarned,
			Duplicate:    true,
			Submission:   &prior,
		}, nil
	}

	if s.info.Status != models.SessionStatusActive {
		return &SubmitResult{Reason: RejectNotActive}, nil
	}
	act, item := s.current()
	if act == nil {
		return &SubmitResult{Reason: RejectNotActive}, nil
	}
	if act.Type == models.ActivityTypeTeamChallenge {
		return nil, apperr.Validation("team challenge answers are submitted as guesses")
	}
	if act.ID != req.ActivityID || s.info.ContentIndex != req.ContentIndex ||
		(req.ContentID != uuid.Nil && req.ContentID != item.ID) {
		log.Debug().
			Str("access_code", code).
			Str("user_id", req.UserID).
			Int("content_index", req.ContentIndex).
			Str("position", s.position().String()).
			Msg("rejected stale submission")
		return &SubmitResult{Reason: RejectStale}, nil
	}

	now := m.clock.Now()
	d := pacer.Duration(s.game, s.position())
	var serverRemaining time.Duration
	if deadline := s.deadline(); deadline != nil {
		serverRemaining = max(deadline.Sub(now), 0)
	}
	clientRemaining := time.Duration(-1)
	if req.TimeRemaining != nil && *req.TimeRemaining >= 0 {
		clientRemaining = time.Duration(*req.TimeRemaining * float64(time.Second))
	}

	res, err := s.scores.Submit(scoring.SubmitInput{
		UserID:          req.UserID,
		ActivityType:    act.Type,
		ActivityID:      act.ID,
		Item:            *item,
		ContentIndex:    s.info.ContentIndex,
		Answer:          req.Answer,
		ClientRemaining: clientRemaining,
		ServerRemaining: serverRemaining,
		Duration:        d,
		At:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	if !res.Duplicate {
		m.publishLeaderboardLocked(s)
	}

	log.Info().
		Str("access_code", code).
		Str("user_id", req.UserID).
		Str("position", s.position().String()).
		Bool("correct", res.Submission.Correct).
		Int("points", res.Submission.PointsEarned).
		Msg("answer submitted")

	sub := res.Submission
	return &SubmitResult{
		Valid:        true,
		Correct:      sub.Correct,
		PointsEarned: sub.PointsEarned,
		Explanation:  res.Explanation,
		Duplicate:    res.Duplicate,
		Submission:   &sub,
	}, nil
}
