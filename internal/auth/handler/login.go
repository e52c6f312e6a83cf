package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/login"
	"github.com/victorxys/dify-0.15.3/internal/middleware"
)

type loginRequest struct {
	PhoneNumber string `json:"phone_number" form:"phone_number"`
	Password    string `json:"password" form:"password"`
	Redirect    string `json:"redirect" form:"redirect"`
}

// showLogin serves the login form, or skips it when the browser already
// holds a session.
func (h *Handler) showLogin(c *gin.Context) {
	redirect := login.SafeRedirect(c.Query("redirect"), h.landing)

	if _, ok := h.synchronizer(c).Read(c.Request.Context()); ok {
		c.Redirect(http.StatusFound, redirect)
		return
	}

	h.renderLogin(c, http.StatusOK, pageData{Redirect: redirect})
}

func (h *Handler) submitLogin(c *gin.Context) {
	var req loginRequest
	var err error
	if c.ContentType() == gin.MIMEJSON {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		// An unreadable body is treated like an empty form.
		logger.Debug("login form not bound", map[string]any{"error": err.Error()})
		req = loginRequest{}
	}
	if req.Redirect == "" {
		req.Redirect = c.Query("redirect")
	}

	key := attemptKey(c, req.PhoneNumber)
	syncer := h.synchronizer(c)
	res, err := h.orchestrator.Submit(
		c.Request.Context(),
		key,
		login.Form{
			Identifier: req.PhoneNumber,
			Secret:     req.Password,
			Redirect:   req.Redirect,
		},
		syncer,
	)

	tag := login.ResolveTag(c.Request)

	if err != nil {
		h.loginFailed(c, tag, req, err)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"result":   "success",
			"redirect": res.Redirect,
			"degraded": res.Persisted.Degraded(),
			"message":  login.Notice(tag, nil),
		})
		return
	}
	c.Redirect(http.StatusSeeOther, res.Redirect)
}

func (h *Handler) loginFailed(c *gin.Context, tag language.Tag, req loginRequest, err error) {
	status := statusFor(err)
	notice := login.Notice(tag, err)

	kind := string(auth.KindOf(err))
	if errors.Is(err, login.ErrSubmitInProgress) {
		kind = "in_progress"
	}

	if wantsJSON(c) {
		c.JSON(status, gin.H{
			"result":  "error",
			"kind":    kind,
			"message": notice,
		})
		return
	}

	h.renderLogin(c, status, pageData{
		Redirect:    login.SafeRedirect(req.Redirect, h.landing),
		PhoneNumber: req.PhoneNumber,
		Notice:      notice,
	})
}

func (h *Handler) renderLogin(c *gin.Context, status int, data pageData) {
	tag := login.ResolveTag(c.Request)
	data.Action = h.loginPath
	data.Nonce = middleware.Nonce(c.Request)
	data.Lang = tag.String()
	data.Labels = labelsFor(tag)

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(c.Writer, data); err != nil {
		logger.Error("login page render failed", map[string]any{"error": err.Error()})
	}
}
