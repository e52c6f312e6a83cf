package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/metrics"
	"github.com/victorxys/dify-0.15.3/internal/session"
)

// unexported, collision-proof context key
type tokenContextKeyType struct{}

var tokenKey = tokenContextKeyType{}

// TokenFromContext returns the session token the guard let through.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// WithToken stores token in ctx the way the guard does.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

type GuardConfig struct {
	ProtectedPrefixes []string
	LoginPath         string

	// AllowQueryToken enables the ?token= bootstrap. Development only.
	AllowQueryToken bool

	// Cookie describes the session cookie; its Name is the token key.
	Cookie session.CookieOptions

	Metrics *metrics.Metrics
}

// Guard gates protected routes on the presence of a session token. It
// does not validate tokens; the chat backend does that on every call.
type Guard struct {
	cfg GuardConfig
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = session.DefaultTokenKey
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/chat-login"
	}
	if len(cfg.ProtectedPrefixes) == 0 {
		cfg.ProtectedPrefixes = []string{"/chat"}
	}
	return &Guard{cfg: cfg}
}

func underPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Protected reports whether path requires a session token.
func (g *Guard) Protected(path string) bool {
	if underPrefix(path, g.cfg.LoginPath) {
		return false
	}
	for _, p := range g.cfg.ProtectedPrefixes {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

// LoginURL builds the login redirect for a request to path.
func (g *Guard) LoginURL(path string) string {
	return g.cfg.LoginPath + "?redirect=" + url.QueryEscape(path)
}

// Token finds the session token carried by r: cookie first, then the
// Authorization header.
func (g *Guard) Token(r *http.Request) string {
	if token := session.CookieToken(r, g.cfg.Cookie.Name); token != "" {
		return token
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (g *Guard) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Protected(r.URL.Path) {
			g.cfg.Metrics.GuardDecision("public")
			next.ServeHTTP(w, r)
			return
		}

		// 1. Cookie or bearer header
		if token := g.Token(r); token != "" {
			g.cfg.Metrics.GuardDecision("pass")
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
			return
		}

		// 2. Development bootstrap from the query string
		if g.cfg.AllowQueryToken {
			if token := r.URL.Query().Get("token"); token != "" {
				if err := session.SetCookie(w, token, g.cfg.Cookie); err != nil {
					logger.Warn("bootstrap cookie not set", map[string]any{"error": err.Error()})
				}
				logger.Debug("session bootstrapped from query token", map[string]any{"path": r.URL.Path})
				g.cfg.Metrics.GuardDecision("bootstrap")
				next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
				return
			}
		}

		// 3. No token: send the user to log in
		g.cfg.Metrics.GuardDecision("redirect")
		http.Redirect(w, r, g.LoginURL(r.URL.Path), http.StatusFound)
	})
}
