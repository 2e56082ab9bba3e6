package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/pacer"
	"github.com/mcdev12/livequiz/go/internal/session/presence"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
)

// Completion reasons
const (
	ReasonEnded     = "ended"
	ReasonExhausted = "exhausted"
)

// allowedTransitions lists the only status changes a session may make
var allowedTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionStatusLobby:  {models.SessionStatusActive, models.SessionStatusCompleted},
	models.SessionStatusActive: {models.SessionStatusCompleted},
}

func validateStatusTransition(from, to models.SessionStatus) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.State("cannot transition from %s to %s", from, to)
}

// CreateRequest creates a session in LOBBY
type CreateRequest struct {
	OwnerID string
	GameID  uuid.UUID
	ClassID uuid.UUID
}

// JoinRequest adds or refreshes a participant
type JoinRequest struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Create validates the game and class and opens a session with a fresh access code
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	if req.OwnerID == "" {
		return nil, apperr.Validation("owner is required")
	}
	if req.GameID == uuid.Nil {
		return nil, apperr.Validation("game_id is required")
	}

	game, err := m.catalog.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	if !pacer.Playable(game) {
		return nil, apperr.Validation("game %s has no playable content", game.ID)
	}
	if req.ClassID != uuid.Nil {
		class, err := m.catalog.GetClass(ctx, req.ClassID)
		if err != nil {
			return nil, fmt.Errorf("failed to load class: %w", err)
		}
		if class.OwnerID != req.OwnerID {
			return nil, apperr.Forbidden("class %s belongs to another teacher", class.ID)
		}
	}

	now := m.clock.Now()
	s := &Session{
		info: models.Session{
			ID:        uuid.New(),
			GameID:    game.ID,
			ClassID:   req.ClassID,
			OwnerID:   req.OwnerID,
			Status:    models.SessionStatusLobby,
			CreatedAt: now,
		},
		game:         game,
		participants: make(map[string]*models.Participant),
		presence:     presence.NewTracker(m.clock, m.cfg.HeartbeatInterval),
		scores:       scoring.NewAggregator(m.cfg.Scoring),
		teams:        teamchallenge.NewCoordinator(m.cfg.Teams),
		timers:       pacer.NewScheduler(m.clock),
	}
	if err := m.register(s); err != nil {
		return nil, err
	}

	info := s.info
	m.emit(EventSessionCreated, info.ID, events.SessionCreatedPayload{
		SessionID:  info.ID.String(),
		AccessCode: info.AccessCode,
		GameID:     info.GameID.String(),
		ClassID:    info.ClassID.String(),
		OwnerID:    info.OwnerID,
		CreatedAt:  info.CreatedAt,
	})

	log.Info().
		Str("session_id", info.ID.String()).
		Str("access_code", info.AccessCode).
		Str("game_id", info.GameID.String()).
		Msg("created session")
	return &info, nil
}

// Join adds a participant or refreshes one who is already in the roster
func (m *Manager) Join(ctx context.Context, code string, req JoinRequest) (*models.Participant, error) {
	if req.UserID == "" {
		return nil, apperr.Validation("user_id is required")
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		return nil, apperr.Validation("display_name is required")
	}

	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Status == models.SessionStatusCompleted {
		return nil, apperr.Conflict("session %s has completed", code)
	}

	now := m.clock.Now()
	p, existing := s.participants[req.UserID]
	if !existing {
		p = &models.Participant{UserID: req.UserID, JoinedAt: now}
		s.participants[req.UserID] = p
		s.order = append(s.order, req.UserID)
	}
	p.DisplayName = req.DisplayName
	p.AvatarURL = req.AvatarURL
	s.presence.Add(req.UserID)
	s.scores.Register(req.UserID, req.DisplayName)

	m.publishRosterLocked(s)
	m.publishLeaderboardLocked(s)

	log.Info().
		Str("access_code", code).
		Str("user_id", req.UserID).
		Bool("rejoin", existing).
		Msg("participant joined")

	out := *p
	out.Active = true
	out.LastHeartbeatAt = now
	return &out, nil
}

// Leave removes a participant. Leaving twice is a no-op, and so is leaving a
// completed session, whose roster stays as it ended.
func (m *Manager) Leave(ctx context.Context, code, userID string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Status == models.SessionStatusCompleted {
		return nil
	}
	if _, ok := s.participants[userID]; !ok {
		return nil
	}
	delete(s.participants, userID)
	s.removeFromOrder(userID)
	s.presence.Remove(userID)
	s.scores.Unregister(userID)

	var changed []models.Team
	if act, err := s.teamActivityLocked(); err == nil {
		changed = s.teams.RemoveMember(act.ID, userID)
	}
	for _, team := range changed {
		if team.Done {
			s.timers.CancelPrefix(promptKey(team.ID))
		}
		m.publish(broadcast.TeamTopic(code, team.ID, broadcast.KindRoles), events.RolesPayload{
			TeamID:     team.ID,
			DrawerID:   team.DrawerID,
			PreviousID: userID,
			ChangedBy:  userID,
		})
	}

	m.publishRosterLocked(s)
	m.publishLeaderboardLocked(s)
	log.Info().Str("access_code", code).Str("user_id", userID).Msg("participant left")

	m.checkTeamsDoneLocked(s)
	return nil
}

// Get returns the sanitized session view
func (m *Manager) Get(ctx context.Context, code string) (*Snapshot, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot(m.clock.Now())
	return &snap, nil
}

// Participants returns the roster in join order
func (m *Manager) Participants(ctx context.Context, code string) ([]models.Participant, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster(), nil
}

// Sync returns the full state a client needs after connecting or reconnecting
func (m *Manager) Sync(ctx context.Context, code string) (*SyncState, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &SyncState{
		Snapshot:     s.snapshot(m.clock.Now()),
		Participants: s.roster(),
		Leaderboard:  s.scores.Leaderboard(),
	}
	if s.teamActivityID != uuid.Nil {
		st.Teams = s.teams.Teams(s.teamActivityID)
	}
	return st, nil
}

// IsMember reports whether userID is the owner or a participant of the session
func (m *Manager) IsMember(code, userID string) bool {
	s, err := m.lookup(code)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[userID]
	return ok || s.isOwner(userID)
}

// Start moves a session from LOBBY to ACTIVE and begins the first content item
func (m *Manager) Start(ctx context.Context, code, actor string) (*models.Session, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOwner(actor) {
		return nil, apperr.Forbidden("only the session owner may start the session")
	}
	if err := validateStatusTransition(s.info.Status, models.SessionStatusActive); err != nil {
		return nil, fmt.Errorf("invalid status transition: %w", err)
	}
	first, ok := pacer.First(s.game)
	if !ok {
		return nil, apperr.Validation("game %s has no playable content", s.game.ID)
	}

	now := m.clock.Now()
	s.info.Status = models.SessionStatusActive
	s.info.StartedAt = &now
	m.publish(broadcast.SessionTopic(code, broadcast.KindStatus), events.StatusPayload{
		Status: s.info.Status,
		At:     now,
	})
	m.emit(EventSessionStarted, s.info.ID, events.SessionStartedPayload{
		SessionID:        s.info.ID.String(),
		AccessCode:       code,
		StartedAt:        now,
		ParticipantCount: len(s.order),
	})
	log.Info().
		Str("access_code", code).
		Int("participants", len(s.order)).
		Msg("session started")

	m.enterLocked(s, first, true)
	info := s.info
	return &info, nil
}

// End completes a session. Ending a completed session returns it unchanged.
func (m *Manager) End(ctx context.Context, code, actor string) (*models.Session, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOwner(actor) {
		return nil, apperr.Forbidden("only the session owner may end the session")
	}
	m.completeLocked(s, ReasonEnded)
	info := s.info
	return &info, nil
}

// completeLocked moves s to COMPLETED, stops its timers and archives it
func (m *Manager) completeLocked(s *Session, reason string) {
	if s.info.Status == models.SessionStatusCompleted {
		return
	}
	if err := validateStatusTransition(s.info.Status, models.SessionStatusCompleted); err != nil {
		log.Error().Err(err).Str("access_code", s.info.AccessCode).Msg("cannot complete session")
		return
	}

	s.timers.CancelAll()
	now := m.clock.Now()
	s.info.Status = models.SessionStatusCompleted
	s.info.CompletedAt = &now
	s.info.ContentStartedAt = nil

	code := s.info.AccessCode
	board := s.scores.Leaderboard()
	m.publish(broadcast.SessionTopic(code, broadcast.KindStatus), events.StatusPayload{
		Status: s.info.Status,
		At:     now,
	})
	m.publish(broadcast.SessionTopic(code, broadcast.KindLeaderboard), events.LeaderboardPayload{Entries: board})

	var played string
	if s.info.StartedAt != nil {
		played = now.Sub(*s.info.StartedAt).String()
	}
	m.emit(EventSessionCompleted, s.info.ID, events.SessionCompletedPayload{
		SessionID:   s.info.ID.String(),
		AccessCode:  code,
		CompletedAt: now,
		Duration:    played,
		Reason:      reason,
		Leaderboard: board,
	})

	if m.archiver != nil {
		rec := s.archive()
		m.background("archive", func(ctx context.Context) error {
			return m.archiver.ArchiveSession(ctx, rec)
		})
	}

	log.Info().
		Str("access_code", code).
		Str("reason", reason).
		Msg("session completed")
}

func (m *Manager) publishRosterLocked(s *Session) {
	m.publish(broadcast.SessionTopic(s.info.AccessCode, broadcast.KindParticipants), events.ParticipantsPayload{
		Participants: s.roster(),
	})
}

func (m *Manager) publishLeaderboardLocked(s *Session) {
	m.publish(broadcast.SessionTopic(s.info.AccessCode, broadcast.KindLeaderboard), events.LeaderboardPayload{
		Entries: s.scores.Leaderboard(),
	})
}

// IsNotFound reports whether err means the session does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
