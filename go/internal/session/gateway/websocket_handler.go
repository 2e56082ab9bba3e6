package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// Verifier turns a bearer token into a caller identity
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// WebSocketHandler authenticates and upgrades session connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          Verifier
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, verifier Verifier) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm, verifier: verifier}
}

// HandleSessionConnection upgrades /ws/session/:code. The token comes from the
// token query parameter, since browsers cannot set headers on a WebSocket.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := strings.ToUpper(ps.ByName("code"))
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if !h.connectionManager.engine.IsMember(code, id.UserID) {
		http.Error(w, "session ended or code invalid", http.StatusForbidden)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, id.UserID, code); err != nil {
		log.Error().
			Err(err).
			Str("access_code", code).
			Str("user_id", id.UserID).
			Msg("failed to open websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes on router
func (h *WebSocketHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/ws/session/:code", h.HandleSessionConnection)
	router.GET("/ws/stats", h.HandleConnectionStats)
}
