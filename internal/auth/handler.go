package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/askround/backend/pkg/response"
	"github.com/askround/backend/pkg/utils"
)

// LoginRequest is the body for POST /admin/login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Handler serves instance admin authentication.
type Handler struct {
	jwt          *JWTService
	passwordHash string // bcrypt hash of the configured instance admin password
	logger       *zap.Logger
}

// NewHandler creates an auth handler. passwordHash is the bcrypt hash of the
// instance admin password; the plaintext never lives past startup.
func NewHandler(jwtService *JWTService, passwordHash string, logger *zap.Logger) *Handler {
	return &Handler{jwt: jwtService, passwordHash: passwordHash, logger: logger}
}

// Login handles POST /admin/login: exchanges the instance admin password for
// a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !utils.CheckPassword(req.Password, h.passwordHash) {
		response.Unauthorized(c, "invalid password")
		return
	}
	token, err := h.jwt.Generate()
	if err != nil {
		h.logger.Error("generate admin token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, gin.H{"token": token})
}
