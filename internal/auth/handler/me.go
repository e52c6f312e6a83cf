package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

// Me reports who the presented session token belongs to. The token is
// decoded, not verified.
func (h *Handler) Me(c *gin.Context) {
	token := h.guard.Token(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sess, ok := auth.DecodeSession(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unreadable session token"})
		return
	}

	resp := gin.H{"user_id": sess.UserID}
	if !sess.ExpiresAt.IsZero() {
		resp["expires_at"] = sess.ExpiresAt
	}
	c.JSON(http.StatusOK, resp)
}
