package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/login"
	"github.com/victorxys/dify-0.15.3/internal/middleware"
	"github.com/victorxys/dify-0.15.3/internal/session"
)

type Config struct {
	Orchestrator *login.Orchestrator
	Storage      session.Storage
	Cookie       session.CookieOptions
	Guard        *middleware.Guard
	LoginPath    string
	LogoutPath   string
	Landing      string
}

type Handler struct {
	orchestrator *login.Orchestrator
	storage      session.Storage
	cookie       session.CookieOptions
	guard        *middleware.Guard
	loginPath    string
	logoutPath   string
	landing      string
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		orchestrator: cfg.Orchestrator,
		storage:      cfg.Storage,
		cookie:       cfg.Cookie,
		guard:        cfg.Guard,
		loginPath:    cfg.LoginPath,
		logoutPath:   cfg.LogoutPath,
		landing:      cfg.Landing,
	}
	if h.loginPath == "" {
		h.loginPath = "/chat-login"
	}
	if h.logoutPath == "" {
		h.logoutPath = "/chat-logout"
	}
	if h.landing == "" {
		h.landing = login.DefaultLanding
	}
	if h.guard == nil {
		h.guard = middleware.NewGuard(middleware.GuardConfig{LoginPath: h.loginPath, Cookie: h.cookie})
	}
	return h
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET(h.loginPath, h.showLogin)
	r.POST(h.loginPath, h.submitLogin)
	r.POST(h.logoutPath, h.Logout)
	r.GET("/api/me", h.Me)

	if gr, ok := r.(*gin.Engine); ok {
		for _, route := range gr.Routes() {
			logger.Debug("route registered", map[string]any{
				"method": route.Method,
				"path":   route.Path,
			})
		}
	}
}

// synchronizer binds the token surfaces of the current request.
func (h *Handler) synchronizer(c *gin.Context) *session.Synchronizer {
	clientID := session.ClientID(c.Writer, c.Request, h.cookie.Secure)
	return session.NewSynchronizer(h.storage, clientID, c.Writer, c.Request, h.cookie)
}

// attemptKey identifies the browser for re-entrancy checks. Without a client
// cookie it keys on peer and identifier; call it before the synchronizer
// mints a client id.
func attemptKey(c *gin.Context, identifier string) string {
	if cookie, err := c.Request.Cookie(session.ClientCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return "ip:" + c.ClientIP() + ":" + strings.TrimSpace(identifier)
}

func wantsJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON ||
		strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON)
}

// statusFor maps a login failure to the HTTP status of the response.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, login.ErrSubmitInProgress) {
		return http.StatusConflict
	}
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUpstreamRejected:
		if errors.Is(err, auth.ErrProvisionRejected) {
			return http.StatusBadGateway
		}
		return http.StatusUnauthorized
	case auth.KindNetworkFailure, auth.KindMalformedResponse:
		return http.StatusBadGateway
	case auth.KindMissingConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
