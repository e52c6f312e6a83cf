package session

import (
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultTokenKey is the canonical name shared by the storage surface,
	// the session cookie and the route guard.
	DefaultTokenKey = "auth_token"
	DefaultMaxAge   = 24 * time.Hour

	ClientCookieName = "auth_client"
	clientCookieAge  = 365 * 24 * time.Hour
)

// ErrHeadersWritten means the response was already committed, so no cookie
// can be added to it.
var ErrHeadersWritten = errors.New("session: response headers already written")

// CookieOptions defines how the session cookie is issued.
type CookieOptions struct {
	Name     string
	Path     string
	MaxAge   time.Duration
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// normalize applies the documented defaults: path /, 24h, SameSite=Lax.
// HttpOnly and Secure stay off unless the caller turns them on.
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultTokenKey
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// writtenReporter is implemented by response writers that know whether the
// header has been flushed (gin.ResponseWriter does).
type writtenReporter interface {
	Written() bool
}

func committed(w http.ResponseWriter) bool {
	if wr, ok := w.(writtenReporter); ok {
		return wr.Written()
	}
	return false
}

// SetCookie issues the session cookie to the client.
func SetCookie(w http.ResponseWriter, token string, opts CookieOptions) error {
	if committed(w) {
		return ErrHeadersWritten
	}
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    token,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
	return nil
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) error {
	if committed(w) {
		return ErrHeadersWritten
	}
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
	return nil
}

// CookieToken returns the session cookie value carried by r, if any.
func CookieToken(r *http.Request, name string) string {
	if name == "" {
		name = DefaultTokenKey
	}
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClientID returns the browser's client id, issuing a new one when the
// request carries none. An empty result means no id could be established
// and the storage surface is unavailable for this request.
func ClientID(w http.ResponseWriter, r *http.Request, secure bool) string {
	if cookie, err := r.Cookie(ClientCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if committed(w) {
		return ""
	}
	id, err := GenerateID()
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Make the id visible to later readers of the same request.
	r.AddCookie(&http.Cookie{Name: ClientCookieName, Value: id})
	return id
}
