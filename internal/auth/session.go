package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is what can be read out of an internal session token without
// contacting the backend. It is informational only: the token is not
// verified here, the chat backend does that.
type Session struct {
	UserID    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// DecodeSession extracts the user id from a JWT-shaped session token.
// Malformed or opaque tokens yield ok=false.
func DecodeSession(token string) (Session, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, false
	}

	var userID string
	for _, name := range []string{"user_id", "sub"} {
		if v, ok := claims[name].(string); ok && v != "" {
			userID = v
			break
		}
	}
	if userID == "" {
		return Session{}, false
	}

	s := Session{UserID: userID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, true
}
