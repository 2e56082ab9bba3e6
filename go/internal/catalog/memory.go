// Package catalog reads games and classes for session creation.
package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Memory is an in-process catalog, typically loaded from a YAML file
type Memory struct {
	mu      sync.RWMutex
	games   map[uuid.UUID]*models.Game
	classes map[uuid.UUID]*models.Class
}

// NewMemory creates an empty catalog
func NewMemory() *Memory {
	return &Memory{
		games:   make(map[uuid.UUID]*models.Game),
		classes: make(map[uuid.UUID]*models.Class),
	}
}

// AddGame stores or replaces a game
func (m *Memory) AddGame(g *models.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
}

// AddClass stores or replaces a class
func (m *Memory) AddClass(c *models.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
}

// GetGame returns a game by ID
func (m *Memory) GetGame(_ context.Context, id uuid.UUID) (*models.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, apperr.NotFound("game %s", id)
	}
	return g, nil
}

// GetClass returns a class by ID
func (m *Memory) GetClass(_ context.Context, id uuid.UUID) (*models.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return nil, apperr.NotFound("class %s", id)
	}
	return c, nil
}

// Games returns every game
func (m *Memory) Games() []*models.Game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Game, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	return out
}

// Classes returns every class
func (m *Memory) Classes() []*models.Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	return out
}
