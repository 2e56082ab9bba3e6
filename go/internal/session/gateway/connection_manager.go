// Package gateway pushes session topics to browsers over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/events"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
)

// Engine is what the gateway needs from the session engine
type Engine interface {
	Sync(ctx context.Context, code string) (*session.SyncState, error)
	IsMember(code, userID string) bool
	Heartbeat(ctx context.Context, code, userID string) error
	ChallengeStatus(ctx context.Context, code, userID, teamID string) (*teamchallenge.Status, error)
	GetDrawing(ctx context.Context, code, userID, teamID string) (*teamchallenge.Drawing, error)
	DrawStroke(ctx context.Context, code, actor, teamID string, data json.RawMessage) (*models.Stroke, error)
	ClearDrawing(ctx context.Context, code, actor, teamID string) error
}

// ConnectionManager tracks WebSocket connections per session
type ConnectionManager struct {
	sessions map[string]map[*Connection]struct{}
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	engine   Engine
	bus      *broadcast.Broadcaster
	clock    clockwork.Clock
}

// Connection is one client socket subscribed to a session
type Connection struct {
	ID         string
	UserID     string
	AccessCode string

	conn    *websocket.Conn
	sub     *broadcast.Subscription
	send    chan ServerMessage
	manager *ConnectionManager
	once    sync.Once
	done    chan struct{}

	ConnectedAt time.Time
}

// ConnectionConfig holds WebSocket limits and timings
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// CallTimeout bounds each engine call made for a client message
	CallTimeout time.Duration
	CheckOrigin func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // strokes carry point lists
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CallTimeout:     5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Stats summarizes open connections
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// NewConnectionManager creates a connection manager
func NewConnectionManager(config ConnectionConfig, engine Engine, bus *broadcast.Broadcaster, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		sessions: make(map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		engine: engine,
		bus:    bus,
		clock:  clock,
	}
}

// UpgradeConnection upgrades the request, sends the sync message and starts the pumps.
// The subscription is opened before the sync state is read so no update falls between them.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, code string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	sub := cm.bus.Subscribe(broadcast.SessionTopics(code)...)
	ctx, cancel := context.WithTimeout(r.Context(), cm.config.CallTimeout)
	state, err := cm.engine.Sync(ctx, code)
	cancel()
	if err != nil {
		sub.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended or code invalid"),
			time.Now().Add(cm.config.WriteTimeout))
		conn.Close()
		return fmt.Errorf("failed to sync session %s: %w", code, err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		AccessCode:  code,
		conn:        conn,
		sub:         sub,
		send:        make(chan ServerMessage, 32),
		manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: cm.clock.Now(),
	}

	conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	if err := conn.WriteJSON(ServerMessage{Type: ServerSync, Data: state}); err != nil {
		sub.Close()
		conn.Close()
		return fmt.Errorf("failed to send sync: %w", err)
	}

	cm.register(c)
	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", userID).
		Str("access_code", code).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.sessions[c.AccessCode] == nil {
		cm.sessions[c.AccessCode] = make(map[*Connection]struct{})
	}
	cm.sessions[c.AccessCode][c] = struct{}{}
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if conns, ok := cm.sessions[c.AccessCode]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(cm.sessions, c.AccessCode)
		}
	}
}

// Stats returns connection counts
func (cm *ConnectionManager) Stats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	st := Stats{SessionConnections: make(map[string]int, len(cm.sessions))}
	for code, conns := range cm.sessions {
		st.TotalConnections += len(conns)
		st.SessionConnections[code] = len(conns)
	}
	st.ActiveSessions = len(cm.sessions)
	return st
}

// CloseAll disconnects every client
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, conns := range cm.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	cm.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.sub.Close()
		c.manager.unregister(c)
		c.conn.Close()
		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Str("access_code", c.AccessCode).
			Msg("websocket connection closed")
	})
}

// reply queues a direct message for this client. It drops the message when the
// client is not reading.
func (c *Connection) reply(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		log.Warn().Str("connection_id", c.ID).Str("type", msg.Type).Msg("reply buffer full, dropping")
	}
}

func (c *Connection) writePump() {
	cfg := c.manager.config
	ticker := c.manager.clock.NewTicker(cfg.PingInterval)
	// canvas snapshot high-water marks by team, owned by this goroutine
	marks := make(map[string]int64)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		var out ServerMessage
		select {
		case <-c.done:
			return
		case msg, ok := <-c.sub.C():
			if !ok {
				// evicted for falling behind; the client resyncs on reconnect
				c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "lagging"))
				return
			}
			if staleStroke(msg, marks) {
				continue
			}
			out = ServerMessage{Type: ServerEvent, Event: &msg}
		case out = <-c.send:
			if d, ok := out.Data.(*teamchallenge.Drawing); ok && out.Type == ServerDrawing {
				marks[d.TeamID] = max(marks[d.TeamID], d.LastSeq)
			}
		case <-ticker.Chan():
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			continue
		}

		c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		if err := c.conn.WriteJSON(out); err != nil {
			log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
			return
		}
	}
}

func (c *Connection) readPump() {
	cfg := c.manager.config
	defer c.close()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ServerMessage{Type: ServerError, Error: "malformed message"})
			continue
		}
		c.handleClientMessage(msg)
	}
}

func (c *Connection) handleClientMessage(msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.CallTimeout)
	defer cancel()
	engine := c.manager.engine

	var err error
	switch msg.Type {
	case ClientHeartbeat:
		err = engine.Heartbeat(ctx, c.AccessCode, c.UserID)
	case ClientSubscribeTeam:
		err = c.subscribeTeam(ctx, msg.TeamID)
	case ClientStroke:
		_, err = engine.DrawStroke(ctx, c.AccessCode, c.UserID, msg.TeamID, msg.Data)
	case ClientClear:
		err = engine.ClearDrawing(ctx, c.AccessCode, c.UserID, msg.TeamID)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("client message rejected")
		c.reply(ServerMessage{Type: ServerError, For: msg.Type, Error: err.Error()})
		return
	}
	if msg.Type != ClientStroke && msg.Type != ClientHeartbeat {
		c.reply(ServerMessage{Type: ServerAck, For: msg.Type})
	}
}

// subscribeTeam adds a team's topics after checking the caller may see the team,
// then sends the current canvas so a late joiner can catch up. Strokes queued
// between the two that the snapshot already holds are dropped by writePump.
func (c *Connection) subscribeTeam(ctx context.Context, teamID string) error {
	engine := c.manager.engine
	if _, err := engine.ChallengeStatus(ctx, c.AccessCode, c.UserID, teamID); err != nil {
		return err
	}
	c.sub.Add(broadcast.TeamTopics(c.AccessCode, teamID)...)

	drawing, err := engine.GetDrawing(ctx, c.AccessCode, c.UserID, teamID)
	if err != nil {
		return err
	}
	c.reply(ServerMessage{Type: ServerDrawing, Data: drawing})
	return nil
}

// staleStroke reports whether a pushed stroke is already part of a canvas
// snapshot this connection was sent
func staleStroke(msg broadcast.Message, marks map[string]int64) bool {
	if msg.Kind != broadcast.KindDrawing || len(marks) == 0 {
		return false
	}
	var p events.DrawingPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil || p.Type != events.DrawingStroke {
		return false
	}
	var s models.Stroke
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return false
	}
	mark, ok := marks[s.TeamID]
	return ok && s.Seq <= mark
}
