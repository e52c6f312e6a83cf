package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/logger"
)

// Persisted reports which surfaces accepted a token write.
type Persisted struct {
	Storage bool
	Cookie  bool
}

// Degraded is true when the storage copy was written but the cookie was
// not: client-side checks see the session, the route guard does not.
func (p Persisted) Degraded() bool {
	return p.Storage && !p.Cookie
}

// Synchronizer keeps one session token replicated across the client
// storage surface and the session cookie of a single request/response
// pair. Both surfaces are last-writer-wins copies of the same value.
type Synchronizer struct {
	storage  Storage
	clientID string
	w        http.ResponseWriter
	r        *http.Request
	cookie   CookieOptions
}

// NewSynchronizer binds the surfaces for one request. storage may be nil
// and clientID may be empty; the storage surface is then treated as
// unavailable.
func NewSynchronizer(storage Storage, clientID string, w http.ResponseWriter, r *http.Request, cookie CookieOptions) *Synchronizer {
	return &Synchronizer{
		storage:  storage,
		clientID: clientID,
		w:        w,
		r:        r,
		cookie:   cookie.normalize(),
	}
}

// Key returns the canonical token key used by both surfaces.
func (s *Synchronizer) Key() string {
	return s.cookie.Name
}

func (s *Synchronizer) storageAvailable() bool {
	return s.storage != nil && s.clientID != ""
}

// Persist writes token to both surfaces. It fails only when neither surface
// accepted the write.
func (s *Synchronizer) Persist(ctx context.Context, token string) (Persisted, error) {
	var p Persisted

	if s.storageAvailable() {
		if err := s.storage.Set(ctx, s.clientID, s.Key(), token, s.cookie.MaxAge); err != nil {
			logger.Warn("client storage write failed", map[string]any{"error": err.Error()})
		} else {
			p.Storage = true
		}
	} else {
		logger.Warn("client storage unavailable, writing cookie only", nil)
	}

	if err := SetCookie(s.w, token, s.cookie); err != nil {
		logger.Warn("session cookie write failed", map[string]any{"error": err.Error()})
	} else {
		p.Cookie = true
		// Keep the in-flight request consistent with what was just issued.
		replaceRequestCookie(s.r, s.Key(), token)
	}

	if !p.Storage && !p.Cookie {
		return p, &auth.Error{Op: "persist", Kind: auth.ErrStorageUnavailable}
	}
	if p.Degraded() {
		logger.Warn("session persisted in degraded mode: route guard will not see it", nil)
	}
	return p, nil
}

// Read returns the token from client storage, falling back to the cookie.
// A token found only in the cookie is written back into storage.
func (s *Synchronizer) Read(ctx context.Context) (string, bool) {
	if s.storageAvailable() {
		token, err := s.storage.Get(ctx, s.clientID, s.Key())
		switch {
		case err == nil && token != "":
			return token, true
		case err != nil && !errors.Is(err, ErrNotFound):
			logger.Warn("client storage read failed", map[string]any{"error": err.Error()})
		}
	}

	token := CookieToken(s.r, s.Key())
	if token == "" {
		return "", false
	}

	if s.storageAvailable() {
		if err := s.storage.Set(ctx, s.clientID, s.Key(), token, s.cookie.MaxAge); err != nil {
			logger.Warn("client storage resync failed", map[string]any{"error": err.Error()})
		}
	}
	return token, true
}

// Clear removes the token from both surfaces. Failures are logged, never
// returned.
func (s *Synchronizer) Clear(ctx context.Context) {
	if s.storageAvailable() {
		if err := s.storage.Delete(ctx, s.clientID, s.Key()); err != nil {
			logger.Warn("client storage delete failed", map[string]any{"error": err.Error()})
		}
	}
	if err := ClearCookie(s.w, s.cookie); err != nil {
		logger.Warn("session cookie clear failed", map[string]any{"error": err.Error()})
	}
	replaceRequestCookie(s.r, s.Key(), "")
}

// replaceRequestCookie rewrites the request's Cookie header so that name
// carries value, or is absent when value is empty.
func replaceRequestCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != name {
			r.AddCookie(c)
		}
	}
	if value != "" {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}
