package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Storage.Get when the key is absent.
var ErrNotFound = errors.New("session: key not found")

// Storage is the per-browser key/value surface that mirrors what the
// session cookie carries. Items are scoped by an opaque client id.
// Implementations must stay stateless with respect to callers: every call
// is self-contained and the last write wins.
type Storage interface {
	Get(ctx context.Context, clientID, key string) (string, error)
	Set(ctx context.Context, clientID, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, clientID, key string) error
}
