package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/pacer"
	"github.com/mcdev12/livequiz/go/internal/session/presence"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
)

// Session is the in-memory state of one live session. mu guards every field.
type Session struct {
	mu sync.Mutex

	info models.Session
	game *models.Game

	participants map[string]*models.Participant
	order        []string // user IDs in join order

	presence *presence.Tracker
	scores   *scoring.Aggregator
	teams    *teamchallenge.Coordinator
	timers   *pacer.Scheduler

	// most recent team challenge activity, readable after the session moves on
	teamActivityID uuid.UUID
}

// Snapshot is the sanitized public view of a session
type Snapshot struct {
	Session          models.Session      `json:"session"`
	GameTitle        string              `json:"game_title"`
	ActivityCount    int                 `json:"activity_count"`
	Activity         *models.Activity    `json:"activity,omitempty"`
	ContentItem      *models.ContentItem `json:"content_item,omitempty"`
	DeadlineAt       *time.Time          `json:"deadline_at,omitempty"`
	ServerTime       time.Time           `json:"server_time"`
	ParticipantCount int                 `json:"participant_count"`
}

// SyncState is everything a reconnecting client needs to rebuild its replica
type SyncState struct {
	Snapshot     Snapshot                  `json:"snapshot"`
	Participants []models.Participant      `json:"participants"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
	Teams        []models.Team             `json:"teams,omitempty"`
}

func (s *Session) position() pacer.Position {
	return pacer.Position{ActivityIndex: s.info.ActivityIndex, ContentIndex: s.info.ContentIndex}
}

// current returns the activity and content item at the session position. Both
// are nil outside ACTIVE. The item is nil for a team challenge.
func (s *Session) current() (*models.Activity, *models.ContentItem) {
	if s.info.Status != models.SessionStatusActive {
		return nil, nil
	}
	act, item, err := pacer.Resolve(s.game, s.position())
	if err != nil {
		return nil, nil
	}
	if act.Type == models.ActivityTypeTeamChallenge {
		return act, nil
	}
	return act, item
}

func (s *Session) deadline() *time.Time {
	if s.info.Status != models.SessionStatusActive || s.info.ContentStartedAt == nil {
		return nil
	}
	d := pacer.Duration(s.game, s.position())
	if d <= 0 {
		return nil
	}
	at := s.info.ContentStartedAt.Add(d)
	return &at
}

func (s *Session) isOwner(userID string) bool {
	return userID != "" && userID == s.info.OwnerID
}

func (s *Session) roster() []models.Participant {
	out := make([]models.Participant, 0, len(s.order))
	for _, id := range s.order {
		p := *s.participants[id]
		p.Active = s.presence.IsActive(id)
		if seen, ok := s.presence.LastSeen(id); ok {
			p.LastHeartbeatAt = seen
		}
		out = append(out, p)
	}
	return out
}

// activeMembers returns active participant IDs in join order
func (s *Session) activeMembers() []string {
	var out []string
	for _, id := range s.order {
		if s.presence.IsActive(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Session) removeFromOrder(userID string) {
	if i := slices.Index(s.order, userID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func (s *Session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Session:          s.info,
		GameTitle:        s.game.Title,
		ActivityCount:    len(s.game.Activities),
		DeadlineAt:       s.deadline(),
		ServerTime:       now,
		ParticipantCount: len(s.order),
	}
	act, item := s.current()
	if act != nil {
		a := publicActivity(*act)
		snap.Activity = &a
	}
	if item != nil {
		it := publicItem(*item)
		snap.ContentItem = &it
	}
	return snap
}

// publicActivity strips answer keys from an activity
func publicActivity(act models.Activity) models.Activity {
	content := make([]models.ContentItem, len(act.Content))
	for i, item := range act.Content {
		content[i] = publicItem(item)
	}
	act.Content = content
	return act
}

func publicItem(item models.ContentItem) models.ContentItem {
	item.AnswerKey = nil
	return item
}

func (s *Session) archive() *models.SessionArchive {
	rec := &models.SessionArchive{
		Session:      s.info,
		Participants: s.roster(),
		Leaderboard:  s.scores.Leaderboard(),
		Submissions:  s.scores.Submissions(),
	}
	for _, act := range s.game.Activities {
		rec.Teams = append(rec.Teams, s.teams.Teams(act.ID)...)
	}
	return rec
}
