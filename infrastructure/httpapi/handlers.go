package httpapi

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handlers struct {
	auth  services.IAuthService
	chat  services.IChatService
	stats *observability.ChatStats
	log   *slog.Logger
}

func NewHandlers(authSvc services.IAuthService, chat services.IChatService,
	stats *observability.ChatStats, log *slog.Logger) *Handlers {
	return &Handlers{auth: authSvc, chat: chat, stats: stats, log: log}
}

func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}
	result, err := h.auth.Register(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": result})
}

func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}
	result, err := h.auth.Login(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": result})
}

func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.auth.ListUsers()
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{"username": u.Username, "avatarUrl": u.AvatarURL})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": out})
}

// EditMessage rewrites a message's content. Only the sender may edit; the
// room is notified through the same fan-out path as a live send.
func (h *Handlers) EditMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid message id"})
		return
	}
	var req struct {
		Text   string   `json:"text"`
		Images []string `json:"images"`
	}
	if err := c.BindJSON(&req); err != nil {
		return
	}

	claims := c.MustGet(claimsKey).(*auth.CustomClaims)
	updated, err := h.chat.EditMessage(c.Request.Context(), id, claims.Username, req.Text, req.Images)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": updated})
}

func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid message id"})
		return
	}

	claims := c.MustGet(claimsKey).(*auth.CustomClaims)
	if err := h.chat.DeleteMessage(c.Request.Context(), id, claims.Username); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.GetLatest())
}

// writeError translates the error taxonomy into HTTP. Validation failures
// carry the field map so the client can mark individual inputs.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var vErr *errors.ValidationError
	switch {
	case stderrors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Validation failed",
			"errors":  vErr.Fields,
		})
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidCredentials),
		stderrors.Is(err, errors.ErrAuthenticationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
	case stderrors.Is(err, errors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "only the sender may do that"})
	case stderrors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "message not found"})
	default:
		h.log.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
	}
}
