// Package ws maintains live socket connections and fans engine events out
// to the single most recently authenticated connection per user.
//
// Delivery is deliberately at-most-once and best-effort: a user with no
// bound connection silently misses the event and reconciles by polling
// balance and session status on reconnect.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/creditflow/creditflow/internal/notify"
	"github.com/creditflow/creditflow/internal/token"
	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the wire frame for both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type authenticatedPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type creditUpdatePayload struct {
	Credits int64 `json:"credits"`
}

// Hub tracks connections and the user binding table. A user authenticating
// a second connection displaces the first: only the newest connection is
// addressable (last-writer-wins).
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	bindings map[int64]*Client

	verifier token.Verifier
	log      *zap.Logger
}

type Params struct {
	fx.In

	Verifier token.Verifier
	Log      *zap.Logger
}

func New(p Params) *Hub {
	return NewHub(p.Verifier, p.Log)
}

func NewHub(verifier token.Verifier, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		bindings: make(map[int64]*Client),
		verifier: verifier,
		log:      log.Named("ws"),
	}
}

// HandleUpgrade upgrades the HTTP request and starts the client pumps.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn)
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("conn_id", client.id))

	go client.writePump()
	go client.readPump()
}

// authenticate verifies the token carried by an authenticate frame and
// binds the user to this connection. Failures are reported on the same
// connection with a reason; the connection itself stays open.
func (h *Hub) authenticate(client *Client, rawToken string) {
	userID, err := h.verifier.Verify(token.StripBearer(rawToken))
	if err != nil {
		reason := "authentication failed"
		switch {
		case errors.Is(err, token.ErrMalformedToken):
			reason = "malformed token"
		case errors.Is(err, token.ErrInvalidToken):
			reason = "invalid token"
		}
		h.log.Info("authentication rejected",
			zap.String("conn_id", client.id), zap.String("reason", reason))
		client.sendJSON("authenticated", authenticatedPayload{Success: false, Error: reason})
		return
	}

	h.mu.Lock()
	client.userID = userID
	h.bindings[userID] = client
	h.mu.Unlock()

	h.log.Info("client authenticated",
		zap.String("conn_id", client.id), zap.Int64("user_id", userID))
	client.sendJSON("authenticated", authenticatedPayload{Success: true})
}

// unregister drops the client and, if it is still the bound connection for
// its user, the binding. A displaced connection leaves the newer binding
// untouched.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	if known {
		delete(h.clients, client)
		if client.userID != 0 && h.bindings[client.userID] == client {
			delete(h.bindings, client.userID)
		}
		client.closed = true
		close(client.send)
	}
	h.mu.Unlock()
	if known {
		h.log.Info("client disconnected", zap.String("conn_id", client.id))
	}
}

// CreditUpdate delivers a balance update to the user's bound connection.
// Part of the notify.Sink contract.
func (h *Hub) CreditUpdate(userID int64, credits int64) {
	h.deliver(userID, "credit_update", creditUpdatePayload{Credits: credits})
}

// SessionEnd delivers a termination notice to the user's bound connection.
// Part of the notify.Sink contract.
func (h *Hub) SessionEnd(userID int64) {
	h.deliver(userID, "session_end", struct{}{})
}

// BroadcastCreditUpdate is the in-process entry point with the same
// lookup and delivery semantics as the channel subscription path.
func (h *Hub) BroadcastCreditUpdate(userID int64, credits int64) {
	h.CreditUpdate(userID, credits)
}

// BroadcastSessionEnd is the in-process entry point for session_end.
func (h *Hub) BroadcastSessionEnd(userID int64) {
	h.SessionEnd(userID)
}

func (h *Hub) deliver(userID int64, event string, data any) {
	h.mu.RLock()
	client := h.bindings[userID]
	h.mu.RUnlock()

	if client == nil {
		// Expected whenever the user has no live connection.
		h.log.Debug("no connection bound, dropping event",
			zap.Int64("user_id", userID), zap.String("event", event))
		return
	}
	client.sendJSON(event, data)
}

// ClientCount reports currently connected sockets, bound or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func provideSink(hub *Hub) notify.Sink {
	return hub
}

var Module = fx.Module("ws",
	fx.Provide(New),
	fx.Provide(provideSink),
)
