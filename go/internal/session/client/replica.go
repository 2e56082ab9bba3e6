// Package client follows a live session from a participant's side: it keeps a
// local replica of the session state and reconnects when the socket drops.
package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/pacer"
)

// State is the client's view of a session
type State struct {
	AccessCode   string
	Status       models.SessionStatus
	Position     pacer.Position
	HasPosition  bool
	Activity     *models.Activity
	ContentItem  *models.ContentItem
	StartedAt    time.Time
	DeadlineAt   *time.Time
	Participants []models.Participant
	Leaderboard  []models.LeaderboardEntry
	Teams        []models.Team
	// Team is the followed team, nil when none
	Team   *TeamState
	Synced bool
}

var statusRank = map[models.SessionStatus]int{
	models.SessionStatusLobby:     0,
	models.SessionStatusActive:    1,
	models.SessionStatusCompleted: 2,
}

// Replica applies pushed updates to a State. Updates for a position or status
// the replica has already passed are ignored, so replays and out-of-order
// deliveries after a reconnect are harmless.
type Replica struct {
	mu sync.RWMutex
	st State
}

// NewReplica creates an empty replica
func NewReplica() *Replica {
	return &Replica{}
}

// State returns a copy of the current state
func (r *Replica) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.st
	if st.Team != nil {
		tm := st.Team.clone()
		st.Team = &tm
	}
	return st
}

// Reset replaces the state with a full sync. The followed team is kept; its
// canvas is refreshed by the next drawing snapshot.
func (r *Replica) Reset(st session.SyncState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st = State{
		Participants: st.Participants,
		Leaderboard:  st.Leaderboard,
		Teams:        st.Teams,
		Team:         r.st.Team,
	}
	r.mergeSnapshotLocked(st.Snapshot, true)
	r.st.Synced = true
}

// MergeSnapshot applies a pulled snapshot unless the replica is already further along
func (r *Replica) MergeSnapshot(snap session.Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeSnapshotLocked(snap, false)
}

func (r *Replica) mergeSnapshotLocked(snap session.Snapshot, force bool) bool {
	info := snap.Session
	pos := pacer.Position{ActivityIndex: info.ActivityIndex, ContentIndex: info.ContentIndex}
	if !force && !r.advancesLocked(info.Status, pos, info.ContentStartedAt != nil) {
		return false
	}
	r.st.AccessCode = info.AccessCode
	r.st.Status = info.Status
	r.st.Activity = snap.Activity
	r.st.ContentItem = snap.ContentItem
	r.st.DeadlineAt = snap.DeadlineAt
	r.st.HasPosition = info.ContentStartedAt != nil
	r.st.Position = pos
	r.st.StartedAt = time.Time{}
	if info.ContentStartedAt != nil {
		r.st.StartedAt = *info.ContentStartedAt
	}
	return true
}

// SetParticipants replaces the roster
func (r *Replica) SetParticipants(ps []models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Participants = ps
}

// advancesLocked reports whether a state at (status, pos) is newer than the replica
func (r *Replica) advancesLocked(status models.SessionStatus, pos pacer.Position, hasPos bool) bool {
	if statusRank[status] != statusRank[r.st.Status] {
		return statusRank[status] > statusRank[r.st.Status]
	}
	if !hasPos {
		return false
	}
	return !r.st.HasPosition || r.st.Position.Before(pos)
}

// Apply folds one pushed message into the state. It reports whether anything changed.
func (r *Replica) Apply(msg broadcast.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Kind {
	case broadcast.KindStatus:
		var p events.StatusPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode status: %w", err)
		}
		if statusRank[p.Status] <= statusRank[r.st.Status] {
			return false, nil
		}
		r.st.Status = p.Status
		if p.Status == models.SessionStatusCompleted {
			r.st.DeadlineAt = nil
		}
		return true, nil

	case broadcast.KindActivity:
		var p events.ActivityPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode activity: %w", err)
		}
		if r.st.HasPosition && p.ActivityIndex <= r.st.Position.ActivityIndex && r.st.Activity != nil {
			return false, nil
		}
		act := p.Activity
		r.st.Activity = &act
		r.st.Teams = nil
		r.st.Team = nil
		return true, nil

	case broadcast.KindContent:
		var p events.ContentPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode content: %w", err)
		}
		pos := pacer.Position{ActivityIndex: p.ActivityIndex, ContentIndex: p.CurrentIndex}
		if r.st.Status == models.SessionStatusCompleted || (r.st.HasPosition && !r.st.Position.Before(pos)) {
			return false, nil
		}
		if r.st.Status == models.SessionStatusLobby {
			r.st.Status = models.SessionStatusActive
		}
		r.st.Position = pos
		r.st.HasPosition = true
		r.st.ContentItem = p.ContentItem
		r.st.StartedAt = p.StartedAt
		r.st.DeadlineAt = p.DeadlineAt
		return true, nil

	case broadcast.KindParticipants:
		var p events.ParticipantsPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode participants: %w", err)
		}
		r.st.Participants = p.Participants
		return true, nil

	case broadcast.KindLeaderboard:
		var p events.LeaderboardPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode leaderboard: %w", err)
		}
		r.st.Leaderboard = p.Entries
		return true, nil

	case broadcast.KindTeams:
		var p events.TeamsPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return false, fmt.Errorf("decode teams: %w", err)
		}
		r.st.Teams = p.Teams
		return true, nil

	case broadcast.KindDrawing, broadcast.KindPromptAdvance, broadcast.KindGuessResult, broadcast.KindRoles:
		return r.applyTeamLocked(msg)
	}
	return false, nil
}
