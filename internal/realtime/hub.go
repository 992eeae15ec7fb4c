package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/askround/backend/internal/models"
)

// Server→client event names.
const (
	EventWelcome        = "welcome"
	EventSessionUpdate  = "session_update"
	EventSessionDeleted = "session_deleted"
	EventCommandAck     = "command_ack"
)

// Publisher publishes a session event for other instances (cross-instance
// fan-out). Implemented by RedisPubSub.
type Publisher interface {
	PublishSessionEvent(sessionID, event string, payload []byte) error
}

// Subscriber subscribes to a session's cross-instance channel and invokes
// handler for incoming events.
type Subscriber interface {
	SubscribeSession(sessionID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub is the broadcast channel: it fans session snapshots out to every
// current subscriber of a session id. No buffering, no replay; a late
// joiner gets state only from the explicit join-time fetch.
type Hub struct {
	// sessionID -> map[clientID]*Client
	rooms map[string]map[string]*Client
	subs  map[string]func() // cancel cross-instance subscription per session
	mu    sync.RWMutex

	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a hub. pub/sub may be nil for single-instance deployments.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Join adds a client to a session room. The first local viewer of a session
// starts the cross-instance subscription for it.
func (h *Hub) Join(c *Client, sessionID string) {
	h.Leave(c)

	h.mu.Lock()
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeSession(sessionID, func(event string, payload []byte) {
				h.broadcastLocal(sessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[sessionID] = cancel
			} else {
				h.logger.Warn("session subscribe failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		}
	}
	h.rooms[sessionID][c.ID] = c
	h.mu.Unlock()
	c.setSession(sessionID)
	h.logger.Debug("viewer joined session",
		zap.String("client_id", c.ID), zap.String("session_id", sessionID))
}

// Leave removes a client from its current session room, cancelling the
// cross-instance subscription when the last local viewer leaves.
func (h *Hub) Leave(c *Client) {
	sessionID := c.session()
	if sessionID == "" {
		return
	}
	h.mu.Lock()
	if m, ok := h.rooms[sessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, sessionID)
			if cancel, ok := h.subs[sessionID]; ok {
				cancel()
				delete(h.subs, sessionID)
			}
		}
	}
	h.mu.Unlock()
	c.setSession("")
	h.logger.Debug("viewer left session",
		zap.String("client_id", c.ID), zap.String("session_id", sessionID))
}

// broadcastLocal fans an event out to the local subscribers of a session.
func (h *Hub) broadcastLocal(sessionID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Broadcast delivers an event to every subscriber of a session. With a
// publisher configured it publishes only: the per-instance subscription
// callback performs the local fan-out once for all instances including this
// one, so local viewers never see a snapshot twice.
func (h *Hub) Broadcast(sessionID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		pubErr := h.pub.PublishSessionEvent(sessionID, event, data)
		if pubErr == nil {
			return
		}
		h.logger.Warn("session publish failed, falling back to local fan-out",
			zap.String("session_id", sessionID), zap.Error(pubErr))
	}
	h.broadcastLocal(sessionID, event, json.RawMessage(data))
}

// SessionUpdated implements sessions.Broadcaster.
func (h *Hub) SessionUpdated(s *models.Session) {
	h.Broadcast(s.ID, EventSessionUpdate, s)
}

// SessionDeleted implements sessions.Broadcaster.
func (h *Hub) SessionDeleted(sessionID string) {
	h.Broadcast(sessionID, EventSessionDeleted, deletedPayload{SessionID: sessionID})
}

type deletedPayload struct {
	SessionID string `json:"session_id"`
}

// ViewerCount returns the number of locally connected viewers of a session.
func (h *Hub) ViewerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// SendToClient sends an event to a single connected client (join-time
// snapshots and command acknowledgments).
func (h *Hub) SendToClient(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}
