// Package outbox delivers session lifecycle events to a durable stream without
// blocking the session engine.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle event waiting to be published
type Event struct {
	ID        uuid.UUID       `json:"event_id"`
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Publisher writes an event to the stream. Publishing the same event ID twice
// must not produce two stream entries.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
