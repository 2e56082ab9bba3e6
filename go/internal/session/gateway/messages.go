package gateway

import (
	"encoding/json"

	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
)

// Client message types
const (
	ClientHeartbeat     = "heartbeat"
	ClientSubscribeTeam = "subscribe_team"
	ClientStroke        = "stroke"
	ClientClear         = "clear"
)

// Server message types
const (
	ServerSync    = "sync"
	ServerEvent   = "event"
	ServerDrawing = "drawing"
	ServerAck     = "ack"
	ServerError   = "error"
)

// ClientMessage is a command sent by a connected client
type ClientMessage struct {
	Type   string          `json:"type"`
	TeamID string          `json:"team_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is everything the gateway writes to a client
type ServerMessage struct {
	Type  string             `json:"type"`
	Event *broadcast.Message `json:"event,omitempty"`
	Data  any                `json:"data,omitempty"`
	// For is the client message type an ack or error answers
	For   string `json:"for,omitempty"`
	Error string `json:"error,omitempty"`
}
