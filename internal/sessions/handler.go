package sessions

import (
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/askround/backend/pkg/response"
)

// CreateRequest is the optional body for PUT /sessions/:id.
type CreateRequest struct {
	Name      string `json:"name"`
	IsVisible *bool  `json:"is_visible"`
}

// Handler serves the session HTTP API.
type Handler struct {
	store *Store
}

// NewHandler creates a sessions handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Create handles PUT /sessions/:id. The response is the one place the
// generated moderator password is ever returned.
func (h *Handler) Create(c *gin.Context) {
	id := c.Param("id")
	var req CreateRequest
	// Body is optional; ignore binding errors from an empty body.
	_ = c.ShouldBindJSON(&req)

	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}
	session, err := h.store.Create(c.Request.Context(), id, req.Name, visible)
	if errors.Is(err, ErrSessionExists) {
		response.Conflict(c, "session already exists")
		return
	}
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, session)
}

// Get handles GET /sessions/:id. Without a credential it returns the public
// view (password stripped, hidden questions filtered out). With
// ?admin_password= it returns the moderator view with every question.
func (h *Handler) Get(c *gin.Context) {
	session, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}

	if password := c.Query("admin_password"); password != "" {
		if subtle.ConstantTimeCompare([]byte(password), []byte(session.AdminPassword)) != 1 {
			response.Unauthorized(c, "admin password mismatch")
			return
		}
		response.OK(c, session.Sanitized())
		return
	}
	response.OK(c, session.VisibleOnly())
}

// ListForAdmin handles GET /admin/sessions (instance admin, JWT protected).
// Returns visible sessions split by accept state, credentials included so
// the instance admin can reach each session's moderator view.
func (h *Handler) ListForAdmin(c *gin.Context) {
	open, err := h.store.List(c.Request.Context(), true)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	closed, err := h.store.List(c.Request.Context(), false)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, gin.H{"open": open, "closed": closed})
}
