// Package session is the authoritative controller for live sessions. Every
// session is owned by one Session value whose mutex serializes client requests
// and timer callbacks, so each session has a single writer.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/presence"
	"github.com/mcdev12/livequiz/go/internal/session/scoring"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
)

// Catalog defines what the controller needs from game storage
type Catalog interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error)
}

// EventPublisher receives durable lifecycle events. Enqueue must not block.
type EventPublisher interface {
	Enqueue(eventType string, sessionID uuid.UUID, payload any)
}

// Archiver persists completed sessions
type Archiver interface {
	ArchiveSession(ctx context.Context, rec *models.SessionArchive) error
}

// DrawingStore persists team canvases
type DrawingStore interface {
	SaveDrawing(ctx context.Context, accessCode string, d teamchallenge.Drawing) error
}

// Lifecycle event types
const (
	EventSessionCreated   = "SessionCreated"
	EventSessionStarted   = "SessionStarted"
	EventActivityStarted  = "ActivityStarted"
	EventSessionCompleted = "SessionCompleted"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Config holds controller settings
type Config struct {
	HeartbeatInterval time.Duration
	Retention         time.Duration // how long completed sessions stay readable
	CodeLength        int
	SaveDebounce      time.Duration
	StoreTimeout      time.Duration
	Scoring           scoring.Config
	Teams             teamchallenge.Config
}

// DefaultConfig returns the standard controller settings
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: presence.DefaultInterval,
		Retention:         30 * time.Minute,
		CodeLength:        6,
		SaveDebounce:      time.Second,
		StoreTimeout:      5 * time.Second,
		Scoring:           scoring.DefaultConfig(),
		Teams:             teamchallenge.DefaultConfig(),
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the clock used for timers and timestamps
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithEventPublisher sets the lifecycle event sink
func WithEventPublisher(p EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

// WithArchiver sets where completed sessions are written
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithDrawingStore sets where team canvases are saved
func WithDrawingStore(s DrawingStore) Option {
	return func(m *Manager) { m.drawings = s }
}

// Manager owns every live session in this process
type Manager struct {
	cfg      Config
	clock    clockwork.Clock
	catalog  Catalog
	bus      *broadcast.Broadcaster
	events   EventPublisher
	archiver Archiver
	drawings DrawingStore

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	// background writes (archive, drawing saves) still in flight
	inflight sync.WaitGroup
}

// NewManager creates a Manager
func NewManager(cfg Config, catalog Catalog, bus *broadcast.Broadcaster, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = def.SaveDebounce
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.Scoring.BasePoints <= 0 {
		cfg.Scoring = def.Scoring
	}

	m := &Manager{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		catalog:  catalog,
		bus:      bus,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run sweeps presence and reaps completed sessions until ctx is cancelled
func (m *Manager) Run(ctx context.Context) error {
	sweep := m.clock.NewTicker(m.cfg.HeartbeatInterval / 3)
	defer sweep.Stop()
	reap := m.clock.NewTicker(time.Minute)
	defer reap.Stop()

	log.Info().
		Dur("heartbeat_interval", m.cfg.HeartbeatInterval).
		Dur("retention", m.cfg.Retention).
		Msg("session manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session manager stopping")
			m.shutdown()
			return ctx.Err()
		case <-sweep.Chan():
			m.SweepPresence()
		case <-reap.Chan():
			m.Reap()
		}
	}
}

// SweepPresence marks participants inactive once they miss two heartbeats
func (m *Manager) SweepPresence() {
	for _, s := range m.list() {
		s.mu.Lock()
		if flipped := s.presence.Sweep(); len(flipped) > 0 {
			log.Debug().
				Str("access_code", s.info.AccessCode).
				Strs("user_ids", flipped).
				Msg("participants went inactive")
			m.publishRosterLocked(s)
		}
		s.mu.Unlock()
	}
}

// Reap drops completed sessions older than the retention window
func (m *Manager) Reap() int {
	now := m.clock.Now()
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	reaped := 0
	for code, s := range m.sessions {
		s.mu.Lock()
		expired := s.info.Status == models.SessionStatusCompleted &&
			s.info.CompletedAt != nil &&
			now.Sub(*s.info.CompletedAt) > m.cfg.Retention
		s.mu.Unlock()
		if expired {
			delete(m.sessions, code)
			reaped++
		}
	}
	if reaped > 0 {
		log.Info().Int("reaped", reaped).Msg("reaped completed sessions")
	}
	return reaped
}

// ActiveSessions returns how many sessions are held in memory
func (m *Manager) ActiveSessions() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

// Wait blocks until background archive and drawing writes finish
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) shutdown() {
	for _, s := range m.list() {
		s.timers.CancelAll()
	}
	m.inflight.Wait()
}

func (m *Manager) lookup(code string) (*Session, error) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, apperr.NotFound("session %s", code)
	}
	return s, nil
}

func (m *Manager) list() []*Session {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// register stores s under a fresh access code unique among live sessions
func (m *Manager) register(s *Session) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	for range 10 {
		code, err := newAccessCode(m.cfg.CodeLength)
		if err != nil {
			return fmt.Errorf("failed to generate access code: %w", err)
		}
		if _, taken := m.sessions[code]; taken {
			continue
		}
		s.info.AccessCode = code
		m.sessions[code] = s
		return nil
	}
	return apperr.Conflict("could not allocate a unique access code")
}

func newAccessCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func (m *Manager) publish(topic broadcast.Topic, payload any) {
	if err := m.bus.Publish(topic, payload); err != nil {
		log.Error().Err(err).Str("topic", string(topic)).Msg("failed to publish")
	}
}

func (m *Manager) emit(eventType string, sessionID uuid.UUID, payload any) {
	if m.events == nil {
		return
	}
	m.events.Enqueue(eventType, sessionID, payload)
}

// background runs fn off the session lock with a bounded context
func (m *Manager) background(name string, fn func(ctx context.Context) error) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("task", name).Msg("background write failed")
		}
	}()
}
