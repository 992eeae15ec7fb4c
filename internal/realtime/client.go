package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/askround/backend/internal/sessions"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// commandPayload covers every client→server command body. Unused fields
// stay empty for a given command.
type commandPayload struct {
	SessionID     string `json:"session_id"`
	QuestionID    string `json:"question_id,omitempty"`
	Text          string `json:"text,omitempty"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// ackPayload acknowledges one command to the issuing connection only, so a
// client can tell "rejected" apart from "still propagating".
type ackPayload struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// welcomePayload tells a connection its viewer key, the upvote dedup
// identity for this browser.
type welcomePayload struct {
	ViewerKey string `json:"viewer_key"`
}

// Client represents a single WebSocket connection viewing one session.
type Client struct {
	ID        string
	ViewerKey string

	mu        sync.Mutex
	sessionID string // current joined session, guarded by mu

	hub    *Hub
	store  *sessions.Store
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// viewer key is taken from the viewer_key query parameter when the browser
// already has one, otherwise minted here and announced via welcome.
func ServeWs(hub *Hub, store *sessions.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewerKey := c.Query("viewer_key")
		if viewerKey == "" {
			viewerKey = uuid.New().String()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			ViewerKey: viewerKey,
			hub:       hub,
			store:     store,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		go client.writePump()
		hub.SendToClient(client, EventWelcome, welcomePayload{ViewerKey: viewerKey})
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		var cmd commandPayload
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &cmd); err != nil {
				c.hub.SendToClient(c, EventCommandAck,
					ackPayload{Command: msg.Event, Error: "bad_payload"})
				continue
			}
		}
		c.handle(msg.Event, cmd)
	}
}

// handle dispatches one client command. Rejected commands produce an ack
// and no snapshot; successful mutations broadcast through the store's
// emission path, so no session_update is sent from here.
func (c *Client) handle(event string, cmd commandPayload) {
	ctx := context.Background()

	switch event {
	case "join":
		c.hub.Join(c, cmd.SessionID)
		session, err := c.store.Get(ctx, cmd.SessionID)
		if errors.Is(err, sessions.ErrSessionNotFound) {
			// join to a deleted/unknown session is the terminal notice
			c.hub.SendToClient(c, EventSessionDeleted, deletedPayload{SessionID: cmd.SessionID})
			return
		}
		if err != nil {
			// transient read failure: the session may well be live, so a
			// terminal notice is wrong; let the client retry the join
			c.ack(event, err)
			return
		}
		c.hub.SendToClient(c, EventSessionUpdate, session.Sanitized())

	case "leave":
		c.hub.Leave(c)

	case "ask":
		_, err := c.store.Ask(ctx, cmd.SessionID, cmd.Text)
		c.ack(event, err)

	case "upvote":
		// Always the connection's own viewer key; a client never votes as
		// someone else.
		_, err := c.store.Upvote(ctx, cmd.SessionID, cmd.QuestionID, c.ViewerKey)
		c.ack(event, err)

	case "hide":
		_, err := c.store.SetHidden(ctx, cmd.SessionID, cmd.QuestionID, cmd.AdminPassword, true)
		c.ack(event, err)

	case "unhide":
		_, err := c.store.SetHidden(ctx, cmd.SessionID, cmd.QuestionID, cmd.AdminPassword, false)
		c.ack(event, err)

	case "open_session":
		_, err := c.store.SetAccepting(ctx, cmd.SessionID, cmd.AdminPassword, true)
		c.ack(event, err)

	case "close_session":
		_, err := c.store.SetAccepting(ctx, cmd.SessionID, cmd.AdminPassword, false)
		c.ack(event, err)

	case "delete_session":
		err := c.store.Delete(ctx, cmd.SessionID, cmd.AdminPassword)
		c.ack(event, err)

	default:
		// ignore
	}
}

func (c *Client) ack(command string, err error) {
	ack := ackPayload{Command: command, OK: err == nil, Error: sessions.Kind(err)}
	if err != nil {
		c.logger.Debug("command rejected",
			zap.String("command", command), zap.String("error", ack.Error))
	}
	c.hub.SendToClient(c, EventCommandAck, ack)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
