package exchanger

import (
	"context"
	"errors"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/auth/credentials"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/session"
)

const mockName = "mock"

// Mock is the development exchanger. Fixture accounts must present their
// password; any other non-empty credentials are accepted as a generic user.
// It never talks to the network.
type Mock struct {
	fixtures *credentials.Fixtures
}

func NewMock(fixtures *credentials.Fixtures) *Mock {
	return &Mock{fixtures: fixtures}
}

func (m *Mock) Name() string {
	return mockName
}

func (m *Mock) Exchange(ctx context.Context, creds auth.Credentials) (*auth.ExternalIdentity, error) {
	if err := validate("exchange", creds); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrNetworkFailure, Err: err}
	}

	token, err := session.GenerateID()
	if err != nil {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrNetworkFailure, Err: err}
	}

	identity := &auth.ExternalIdentity{
		Provider:    mockName,
		Identifier:  creds.Identifier,
		AccessToken: "mock-token-" + token,
	}

	acct, err := m.fixtures.Authenticate(creds.Identifier, creds.Secret)
	switch {
	case err == nil:
		identity.User = auth.ExternalUser{ID: acct.UserID, Username: acct.Username, Role: acct.Role}
		logger.Info("mock auth: fixture account", map[string]any{"user_id": acct.UserID})
	case errors.Is(err, credentials.ErrUnknownAccount):
		identity.User = auth.ExternalUser{ID: "mock-" + creds.Identifier, Username: creds.Identifier, Role: "user"}
		logger.Info("mock auth: generic account", nil)
	default:
		return nil, &auth.Error{
			Op:      "exchange",
			Kind:    auth.ErrNonOkStatus,
			Status:  401,
			Message: "用户名或密码错误,初始密码是\"身份证后6位\"",
		}
	}

	return identity, nil
}
