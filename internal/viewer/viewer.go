// Package viewer is the Go client for a live Q&A session: it dials the
// server's WebSocket, issues commands, and drives a reconcile.View from the
// snapshot stream.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/askround/backend/internal/models"
	"github.com/askround/backend/internal/realtime"
	"github.com/askround/backend/internal/reconcile"
)

// command is the client→server payload shape. Unused fields stay empty.
type command struct {
	SessionID     string `json:"session_id"`
	QuestionID    string `json:"question_id,omitempty"`
	Text          string `json:"text,omitempty"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// Viewer is one connected view of one session.
type Viewer struct {
	sessionID string
	conn      *websocket.Conn
	rec       *reconcile.Reconciler
	logger    *zap.Logger

	// mu guards viewerKey and serializes connection writes; command methods
	// may be called from any goroutine while Run reads.
	mu        sync.Mutex
	viewerKey string
}

// Dial connects to wsURL, joins sessionID and returns a viewer whose Run
// loop reconciles every incoming snapshot into view. Pass moderator=true
// for a view that keeps hidden questions.
func Dial(ctx context.Context, wsURL, sessionID string, moderator bool, view reconcile.View, logger *zap.Logger) (*Viewer, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	v := &Viewer{
		sessionID: sessionID,
		conn:      conn,
		rec:       reconcile.New(sessionID, moderator, view),
		logger:    logger,
	}
	if err := v.send("join", command{SessionID: sessionID}); err != nil {
		conn.Close()
		return nil, err
	}
	return v, nil
}

// Run processes server events until the session is deleted, the context is
// cancelled, or the connection fails.
func (v *Viewer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		v.conn.Close()
	}()

	for {
		var msg realtime.WSMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Event {
		case realtime.EventWelcome:
			var w struct {
				ViewerKey string `json:"viewer_key"`
			}
			if err := json.Unmarshal(msg.Data, &w); err == nil {
				v.mu.Lock()
				v.viewerKey = w.ViewerKey
				v.mu.Unlock()
			}
		case realtime.EventSessionUpdate:
			var snapshot models.Session
			if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
				v.logger.Warn("bad snapshot", zap.Error(err))
				continue
			}
			v.rec.Apply(&snapshot)
		case realtime.EventSessionDeleted:
			var d struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(msg.Data, &d); err != nil {
				continue
			}
			v.rec.ApplyDeleted(d.SessionID)
			if v.rec.Deleted() {
				return nil
			}
		case realtime.EventCommandAck:
			var ack struct {
				Command string `json:"command"`
				OK      bool   `json:"ok"`
				Error   string `json:"error"`
			}
			if err := json.Unmarshal(msg.Data, &ack); err == nil && !ack.OK {
				v.logger.Debug("command rejected",
					zap.String("command", ack.Command), zap.String("error", ack.Error))
			}
		}
	}
}

// ViewerKey returns the upvote identity the server assigned this connection.
func (v *Viewer) ViewerKey() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewerKey
}

// Ask submits a new question.
func (v *Viewer) Ask(text string) error {
	return v.send("ask", command{SessionID: v.sessionID, Text: text})
}

// Upvote upvotes a question as this viewer.
func (v *Viewer) Upvote(questionID string) error {
	return v.send("upvote", command{SessionID: v.sessionID, QuestionID: questionID})
}

// Hide hides a question (moderator).
func (v *Viewer) Hide(questionID, adminPassword string) error {
	return v.send("hide", command{SessionID: v.sessionID, QuestionID: questionID, AdminPassword: adminPassword})
}

// Unhide unhides a question (moderator).
func (v *Viewer) Unhide(questionID, adminPassword string) error {
	return v.send("unhide", command{SessionID: v.sessionID, QuestionID: questionID, AdminPassword: adminPassword})
}

// Open reopens the session for questions (moderator).
func (v *Viewer) Open(adminPassword string) error {
	return v.send("open_session", command{SessionID: v.sessionID, AdminPassword: adminPassword})
}

// Close closes the session to new questions (moderator).
func (v *Viewer) Close(adminPassword string) error {
	return v.send("close_session", command{SessionID: v.sessionID, AdminPassword: adminPassword})
}

// Delete deletes the session (moderator).
func (v *Viewer) Delete(adminPassword string) error {
	return v.send("delete_session", command{SessionID: v.sessionID, AdminPassword: adminPassword})
}

// Leave disconnects without affecting the session.
func (v *Viewer) Leave() error {
	_ = v.send("leave", command{SessionID: v.sessionID})
	return v.conn.Close()
}

func (v *Viewer) send(event string, cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn.WriteJSON(realtime.WSMessage{Event: event, Data: data})
}
