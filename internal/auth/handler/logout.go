package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victorxys/dify-0.15.3/internal/logger"
)

// Logout clears the session from both surfaces. It is idempotent.
func (h *Handler) Logout(c *gin.Context) {
	h.synchronizer(c).Clear(c.Request.Context())

	logger.Info("logout", map[string]any{"ip": c.ClientIP()})

	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, h.loginPath)
}
