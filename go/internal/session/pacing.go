package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/pacer"
	"github.com/rs/zerolog/log"
)

// content timers are keyed per position, e.g. content:2/0
const contentKeyPrefix = "content:"

// AdvanceRequest moves a session past the named position
type AdvanceRequest struct {
	ActivityID   uuid.UUID
	ContentIndex int
}

// AdvanceResult reports where the session is after an advance request
type AdvanceResult struct {
	Advanced bool                 `json:"advanced"`
	Position pacer.Position       `json:"position"`
	Status   models.SessionStatus `json:"status"`
}

// Advance moves past the content the caller names. A request naming a position
// the session has already left is acknowledged without effect.
func (m *Manager) Advance(ctx context.Context, code, actor string, req AdvanceRequest) (*AdvanceResult, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOwner(actor) {
		return nil, apperr.Forbidden("only the session owner may advance content")
	}
	if s.info.Status != models.SessionStatusActive {
		return nil, apperr.State("session %s is %s", code, s.info.Status)
	}

	pos := s.position()
	act := s.game.Activities[pos.ActivityIndex]
	if act.ID != req.ActivityID || pos.ContentIndex != req.ContentIndex {
		log.Debug().
			Str("access_code", code).
			Str("requested_activity", req.ActivityID.String()).
			Int("requested_index", req.ContentIndex).
			Str("position", pos.String()).
			Msg("ignoring advance for a position already left")
		return &AdvanceResult{Position: pos, Status: s.info.Status}, nil
	}

	m.advanceLocked(s, pos)
	return &AdvanceResult{Advanced: true, Position: s.position(), Status: s.info.Status}, nil
}

// advanceLocked leaves from, entering the next position or completing the session
func (m *Manager) advanceLocked(s *Session, from pacer.Position) {
	next, ok := pacer.Next(s.game, from)
	if !ok {
		m.completeLocked(s, ReasonExhausted)
		return
	}
	m.enterLocked(s, next, next.ActivityIndex != from.ActivityIndex)
}

// enterLocked makes pos current, broadcasts it and arms its timer
func (m *Manager) enterLocked(s *Session, pos pacer.Position, newActivity bool) {
	now := m.clock.Now()
	code := s.info.AccessCode
	s.info.ActivityIndex = pos.ActivityIndex
	s.info.ContentIndex = pos.ContentIndex
	s.info.ContentStartedAt = &now

	act, item, err := pacer.Resolve(s.game, pos)
	if err != nil {
		log.Error().Err(err).Str("access_code", code).Msg("cannot resolve content position")
		m.completeLocked(s, ReasonExhausted)
		return
	}

	if newActivity {
		s.timers.CancelPrefix(promptKeyPrefix)
		if act.Type == models.ActivityTypeTeamChallenge {
			s.teamActivityID = act.ID
		}
		m.publish(broadcast.SessionTopic(code, broadcast.KindActivity), events.ActivityPayload{
			ActivityIndex: pos.ActivityIndex,
			Activity:      publicActivity(*act),
		})
		m.emit(EventActivityStarted, s.info.ID, events.ActivityStartedPayload{
			SessionID:     s.info.ID.String(),
			ActivityID:    act.ID.String(),
			ActivityIndex: pos.ActivityIndex,
			ActivityType:  act.Type,
			StartedAt:     now,
		})
	}

	payload := events.ContentPayload{
		Event:         events.ContentEventAdvanced,
		ActivityID:    act.ID.String(),
		ActivityIndex: pos.ActivityIndex,
		CurrentIndex:  pos.ContentIndex,
		StartedAt:     now,
		DeadlineAt:    s.deadline(),
	}
	if act.Type != models.ActivityTypeTeamChallenge {
		pub := publicItem(*item)
		payload.ContentItem = &pub
	}
	m.publish(broadcast.SessionTopic(code, broadcast.KindContent), payload)

	s.timers.CancelPrefix(contentKeyPrefix)
	if d := pacer.Duration(s.game, pos); d > 0 {
		s.timers.Schedule(contentKeyPrefix+pos.String(), now, d, func() { m.onContentTimer(code, pos) })
	}

	log.Info().
		Str("access_code", code).
		Str("position", pos.String()).
		Str("activity_type", string(act.Type)).
		Msg("content advanced")
}

// onContentTimer advances a session whose content ran out of time. It does
// nothing when the session has already moved past pos.
func (m *Manager) onContentTimer(code string, pos pacer.Position) {
	s, err := m.lookup(code)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Status != models.SessionStatusActive || s.position() != pos {
		return
	}
	log.Debug().Str("access_code", code).Str("position", pos.String()).Msg("content timer fired")
	m.advanceLocked(s, pos)
}

// Heartbeat records liveness for a participant. Unknown sessions and users are ignored.
func (m *Manager) Heartbeat(ctx context.Context, code, userID string) error {
	s, err := m.lookup(code)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[userID]; !ok {
		return nil
	}
	if s.presence.Heartbeat(userID) {
		log.Debug().Str("access_code", code).Str("user_id", userID).Msg("participant active again")
		m.publishRosterLocked(s)
	}
	return nil
}

// Leaderboard returns the ranked standings
func (m *Manager) Leaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores.Leaderboard(), nil
}
