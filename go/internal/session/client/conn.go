package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/gateway"
	"github.com/mcdev12/livequiz/go/internal/session/rpc"
	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/rs/zerolog/log"
)

// Config configures a Conn
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080
	BaseURL    string
	AccessCode string
	Token      string
	// TeamID is the team to follow from the first connect, if any
	TeamID string

	// MaxRetries is how many reconnects in a row may fail before Run gives up
	MaxRetries int
	// Backoff is the delay step; attempt n waits n*Backoff
	Backoff           time.Duration
	HeartbeatInterval time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Clock      clockwork.Clock

	// OnEvent sees every pushed message after the replica applied it
	OnEvent func(msg broadcast.Message)
}

func (c *Config) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// wireMessage is gateway.ServerMessage with the payload left undecoded
type wireMessage struct {
	Type  string             `json:"type"`
	Event *broadcast.Message `json:"event,omitempty"`
	Data  json.RawMessage    `json:"data,omitempty"`
	For   string             `json:"for,omitempty"`
	Error string             `json:"error,omitempty"`
}

// Conn keeps a replica in step with a session across socket drops. After every
// reconnect it re-pulls the session over RPC before applying pushes.
type Conn struct {
	cfg     Config
	rpc     *rpc.Client
	replica *Replica

	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn creates a Conn. Nothing is dialed until Run.
func NewConn(cfg Config) *Conn {
	cfg.setDefaults()
	cfg.AccessCode = strings.ToUpper(cfg.AccessCode)
	token := cfg.Token
	c := &Conn{
		cfg: cfg,
		rpc: rpc.NewClient(cfg.HTTPClient, cfg.BaseURL,
			connect.WithInterceptors(rpc.NewTokenInterceptor(func() string { return token }))),
		replica: NewReplica(),
	}
	c.replica.FollowTeam(cfg.TeamID)
	return c
}

// Replica returns the replica this Conn maintains
func (c *Conn) Replica() *Replica {
	return c.replica
}

// RPC returns the request/response client for the same server and token
func (c *Conn) RPC() *rpc.Client {
	return c.rpc
}

// Run connects and reconnects until ctx ends, the session goes away or the
// retries run out. Exhausted retries return an apperr.ErrTransient error.
func (c *Conn) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanent(err) {
			return err
		}
		if connected {
			failures = 0
		}
		failures++
		if failures > c.cfg.MaxRetries {
			return apperr.Transient("gave up after %d attempts: %v", c.cfg.MaxRetries, err)
		}

		wait := time.Duration(failures) * c.cfg.Backoff
		log.Debug().
			Err(err).
			Str("access_code", c.cfg.AccessCode).
			Int("attempt", failures).
			Dur("backoff", wait).
			Msg("session connection lost, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.Clock.After(wait):
		}
	}
}

func permanent(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrForbidden) ||
		errors.Is(err, rpc.ErrUnauthenticated)
}

// Send writes a client message on the current socket
func (c *Conn) Send(msg gateway.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return apperr.Transient("not connected")
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return apperr.Transient("write: %v", err)
	}
	return nil
}

// SubscribeTeam follows a team's topics. When the socket is down the error is
// transient and the subscription is sent on the next connect.
func (c *Conn) SubscribeTeam(teamID string) error {
	c.replica.FollowTeam(teamID)
	return c.Send(gateway.ClientMessage{Type: gateway.ClientSubscribeTeam, TeamID: teamID})
}

// Resync pulls the session, roster and leaderboard over RPC into the replica,
// then the followed team's status and canvas
func (c *Conn) Resync(ctx context.Context) error {
	ref := &rpc.SessionRef{AccessCode: c.cfg.AccessCode}
	snap, err := c.rpc.GetSession(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resync session: %w", err)
	}
	roster, err := c.rpc.GetParticipants(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resync roster: %w", err)
	}
	board, err := c.rpc.GetLeaderboard(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resync leaderboard: %w", err)
	}
	c.replica.MergeSnapshot(snap.Snapshot)
	c.replica.SetParticipants(roster.Participants)
	c.replica.SetLeaderboard(board.Entries)
	return c.resyncTeam(ctx)
}

// resyncTeam pulls the followed team. A team that no longer exists, such as
// one from an earlier activity, is unfollowed rather than failing the session.
func (c *Conn) resyncTeam(ctx context.Context) error {
	teamID := c.replica.TeamID()
	if teamID == "" {
		return nil
	}
	ref := &rpc.TeamRef{AccessCode: c.cfg.AccessCode, TeamID: teamID}
	status, err := c.rpc.GetChallengeStatus(ctx, ref)
	if err == nil {
		c.replica.SetChallengeStatus(status.Status)
		var drawing *rpc.DrawingResponse
		if drawing, err = c.rpc.GetDrawing(ctx, ref); err == nil {
			c.replica.ResetDrawing(drawing.Drawing)
			return nil
		}
	}
	if errors.Is(err, apperr.ErrTransient) {
		return fmt.Errorf("failed to resync team %s: %w", teamID, err)
	}
	log.Warn().
		Err(err).
		Str("access_code", c.cfg.AccessCode).
		Str("team_id", teamID).
		Msg("team no longer available, unfollowing")
	c.replica.FollowTeam("")
	return nil
}

// connectOnce runs one socket until it drops. connected reports whether the
// sync handshake completed.
func (c *Conn) connectOnce(ctx context.Context) (connected bool, err error) {
	ws, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	var first wireMessage
	if err := ws.ReadJSON(&first); err != nil {
		return false, apperr.Transient("read sync: %v", err)
	}
	if first.Type != gateway.ServerSync {
		return false, apperr.Transient("expected sync, got %q", first.Type)
	}
	var st session.SyncState
	if err := json.Unmarshal(first.Data, &st); err != nil {
		return false, fmt.Errorf("decode sync: %w", err)
	}
	c.replica.Reset(st)

	if err := c.Resync(ctx); err != nil {
		return true, err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
	}()

	if teamID := c.replica.TeamID(); teamID != "" {
		if err := c.Send(gateway.ClientMessage{Type: gateway.ClientSubscribeTeam, TeamID: teamID}); err != nil {
			return true, err
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go c.heartbeat(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	log.Info().Str("access_code", c.cfg.AccessCode).Msg("session connected")
	return true, c.readLoop(ws)
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/session/" + c.cfg.AccessCode
	u.RawQuery = url.Values{"token": {c.cfg.Token}}.Encode()

	ws, resp, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, rpc.ErrUnauthenticated
			case http.StatusForbidden:
				return nil, apperr.NotFound("session ended or code invalid")
			}
		}
		return nil, apperr.Transient("dial: %v", err)
	}
	return ws, nil
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		var msg wireMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return apperr.Transient("read: %v", err)
		}
		switch msg.Type {
		case gateway.ServerEvent:
			if msg.Event == nil {
				continue
			}
			if _, err := c.replica.Apply(*msg.Event); err != nil {
				log.Warn().Err(err).Str("kind", string(msg.Event.Kind)).Msg("failed to apply session update")
			}
			if c.cfg.OnEvent != nil {
				c.cfg.OnEvent(*msg.Event)
			}
		case gateway.ServerDrawing:
			var d teamchallenge.Drawing
			if err := json.Unmarshal(msg.Data, &d); err != nil {
				log.Warn().Err(err).Msg("failed to decode drawing snapshot")
				continue
			}
			c.replica.ResetDrawing(d)
		case gateway.ServerError:
			log.Warn().Str("for", msg.For).Str("error", msg.Error).Msg("gateway rejected message")
		}
	}
}

func (c *Conn) heartbeat(stop <-chan struct{}) {
	ticker := c.cfg.Clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if err := c.Send(gateway.ClientMessage{Type: gateway.ClientHeartbeat}); err != nil {
				log.Debug().Err(err).Msg("heartbeat not sent")
			}
		}
	}
}
