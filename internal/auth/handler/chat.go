package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/middleware"
)

// NewChatProxy returns the handler for the guarded chat routes. Requests
// are forwarded to upstream with the session token as a bearer credential.
// Without an upstream a placeholder response is served.
func NewChatProxy(upstream string) (gin.HandlerFunc, error) {
	if upstream == "" {
		return chatPlaceholder, nil
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse chat upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("chat upstream %q is not an absolute URL", upstream)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if token, ok := middleware.TokenFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set("Authorization", "Bearer "+token)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("chat upstream unavailable", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

func chatPlaceholder(c *gin.Context) {
	_, ok := middleware.TokenFromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"path":          c.Request.URL.Path,
		"authenticated": ok,
	})
}
