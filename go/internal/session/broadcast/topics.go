package broadcast

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind names what a topic carries
type Kind string

// Session-scoped kinds
const (
	KindParticipants Kind = "participants"
	KindStatus       Kind = "status"
	KindLeaderboard  Kind = "leaderboard"
	KindActivity     Kind = "activity"
	KindContent      Kind = "content"
	KindTeams        Kind = "teams"
)

// Team-scoped kinds
const (
	KindDrawing       Kind = "drawing"
	KindPromptAdvance Kind = "prompt-advance"
	KindGuessResult   Kind = "guess-result"
	KindRoles         Kind = "roles"
)

var (
	sessionKinds = []Kind{KindParticipants, KindStatus, KindLeaderboard, KindActivity, KindContent, KindTeams}
	teamKinds    = []Kind{KindDrawing, KindPromptAdvance, KindGuessResult, KindRoles}
)

// Topic is a named broadcast channel scoped to a session or to one team within a session.
//
//	session.<code>.<kind>
//	session.<code>.team.<team_id>.<kind>
type Topic string

// SessionTopic returns the session-scoped topic for kind
func SessionTopic(accessCode string, kind Kind) Topic {
	return Topic("session." + accessCode + "." + string(kind))
}

// TeamTopic returns the team-scoped topic for kind
func TeamTopic(accessCode, teamID string, kind Kind) Topic {
	return Topic("session." + accessCode + ".team." + teamID + "." + string(kind))
}

// SessionTopics returns every session-scoped topic for an access code
func SessionTopics(accessCode string) []Topic {
	topics := make([]Topic, 0, len(sessionKinds))
	for _, k := range sessionKinds {
		topics = append(topics, SessionTopic(accessCode, k))
	}
	return topics
}

// TeamTopics returns every topic nested under one team
func TeamTopics(accessCode, teamID string) []Topic {
	topics := make([]Topic, 0, len(teamKinds))
	for _, k := range teamKinds {
		topics = append(topics, TeamTopic(accessCode, teamID, k))
	}
	return topics
}

// Kind returns the last segment of the topic
func (t Topic) Kind() Kind {
	s := string(t)
	return Kind(s[strings.LastIndexByte(s, '.')+1:])
}

// Message is the envelope delivered to subscribers
type Message struct {
	ID        string          `json:"id"`
	Topic     Topic           `json:"topic"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
