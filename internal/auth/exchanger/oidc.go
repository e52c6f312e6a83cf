package exchanger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/logger"
)

const oidcName = "oidc"

// OIDC exchanges credentials through the resource-owner password grant of
// an OpenID Connect issuer (e.g. a Keycloak realm fronting the HR system).
// The returned id_token is verified and its claims become the user object.
type OIDC struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	client      *http.Client
	timeout     time.Duration
}

// NewOIDC initializes the exchanger using issuer discovery. timeout bounds
// one exchange; zero means 10s.
func NewOIDC(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	timeout time.Duration,
) (*OIDC, error) {

	if issuer == "" || clientID == "" {
		return nil, errors.New("oidc exchanger config missing required fields")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	return &OIDC{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
			},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		client:   client,
		timeout:  timeout,
	}, nil
}

func (o *OIDC) Name() string {
	return oidcName
}

func (o *OIDC) Exchange(ctx context.Context, creds auth.Credentials) (*auth.ExternalIdentity, error) {
	if err := validate("exchange", creds); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)

	token, err := o.oauthConfig.PasswordCredentialsToken(ctx, creds.Identifier, creds.Secret)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			logger.Warn("oidc password grant rejected", map[string]any{
				"status": rerr.Response.StatusCode,
				"error":  rerr.ErrorCode,
			})
			return nil, &auth.Error{
				Op:      "exchange",
				Kind:    auth.ErrNonOkStatus,
				Status:  rerr.Response.StatusCode,
				Message: rerr.ErrorDescription,
			}
		}
		logger.Error("oidc password grant failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrNetworkFailure, Err: err}
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" || token.AccessToken == "" {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrInvalidResponseShape}
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Error("oidc id_token verification failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrMalformedResponseBody, Err: err}
	}

	var claims struct {
		Subject           string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Role              string `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrMalformedResponseBody, Err: err}
	}
	if claims.Subject == "" {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrInvalidResponseShape}
	}

	logger.Info("oidc exchange verified", map[string]any{
		"issuer":             idToken.Issuer,
		"subject_present":    claims.Subject != "",
		"preferred_username": claims.PreferredUsername,
		"expiry_unix":        idToken.Expiry.Unix(),
	})

	return &auth.ExternalIdentity{
		Provider:    oidcName,
		Identifier:  creds.Identifier,
		AccessToken: token.AccessToken,
		User: auth.ExternalUser{
			ID:       claims.Subject,
			Username: claims.PreferredUsername,
			Role:     claims.Role,
		},
	}, nil
}
