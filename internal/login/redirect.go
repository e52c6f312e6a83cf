package login

import (
	"net/url"
	"strings"
)

// DefaultLanding is where a login lands when no destination was requested.
const DefaultLanding = "/chat"

// SafeRedirect returns raw when it is a path on this site, fallback
// otherwise. Absolute and protocol-relative URLs are never followed.
func SafeRedirect(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return u.RequestURI()
}

// ContextID extracts the chat id from a /chat/<id>/... destination.
func ContextID(target string) string {
	_, rest, ok := strings.Cut(target, "/chat/")
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, "?")
	id, _, _ := strings.Cut(rest, "/")
	return id
}
