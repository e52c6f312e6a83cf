package resolver

import (
	"context"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

// Resolver records which internal account an external identity was
// provisioned into and returns the stable link id. It is the only place
// where the identity-to-account mapping is remembered.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity *auth.ExternalIdentity,
		internalEmail string,
	) (linkID string, err error)
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Resolve(context.Context, *auth.ExternalIdentity, string) (string, error) {
	return "", nil
}
