package drawingstore

import (
	"context"
	"sync"

	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
)

// Memory keeps canvases in process. Used when no Redis address is configured.
type Memory struct {
	mu       sync.RWMutex
	drawings map[string][]byte
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{drawings: make(map[string][]byte)}
}

// SaveDrawing stores an encoded copy so later mutation by the caller is not visible
func (m *Memory) SaveDrawing(ctx context.Context, accessCode string, d teamchallenge.Drawing) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.drawings[drawingKey(accessCode, d.TeamID)] = data
	m.mu.Unlock()
	return nil
}

// LoadDrawing returns nil when nothing is stored for the team
func (m *Memory) LoadDrawing(ctx context.Context, accessCode, teamID string) (*teamchallenge.Drawing, error) {
	m.mu.RLock()
	data, ok := m.drawings[drawingKey(accessCode, teamID)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(data)
}
