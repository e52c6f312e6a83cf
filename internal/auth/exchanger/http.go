package exchanger

import (
	"context"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/httpclient"
	"github.com/victorxys/dify-0.15.3/internal/logger"
)

const httpName = "http"

// HTTPConfig describes the external login endpoint and its field names.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Headers map[string]string

	IdentifierField string
	SecretField     string
	ContextField    string // omitted from the body when empty

	// TokenPath and UserPath locate the access token and user object in
	// the response (gjson path syntax).
	TokenPath string
	UserPath  string

	Client *httpclient.Client
}

// HTTP exchanges credentials with the external business system's login API.
type HTTP struct {
	cfg HTTPConfig
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, errors.New("external auth url is required")
	}
	if cfg.IdentifierField == "" {
		cfg.IdentifierField = "phone_number"
	}
	if cfg.SecretField == "" {
		cfg.SecretField = "password"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = "access_token"
	}
	if cfg.UserPath == "" {
		cfg.UserPath = "user"
	}
	if cfg.Client == nil {
		headers := make(http.Header)
		for k, v := range cfg.Headers {
			headers.Set(k, v)
		}
		if cfg.APIKey != "" {
			headers.Set("X-API-Key", cfg.APIKey)
		}
		cfg.Client = httpclient.New(httpclient.Config{Name: "external-auth", Headers: headers})
	}
	return &HTTP{cfg: cfg}, nil
}

func (h *HTTP) Name() string {
	return httpName
}

func (h *HTTP) Exchange(ctx context.Context, creds auth.Credentials) (*auth.ExternalIdentity, error) {
	if err := validate("exchange", creds); err != nil {
		return nil, err
	}

	body := map[string]string{
		h.cfg.IdentifierField: creds.Identifier,
		h.cfg.SecretField:     creds.Secret,
	}
	if h.cfg.ContextField != "" && creds.ContextID != "" {
		body[h.cfg.ContextField] = creds.ContextID
	}

	resp, err := h.cfg.Client.PostJSON(ctx, h.cfg.URL, body)
	if err != nil {
		logger.Error("external auth request failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrNetworkFailure, Err: err}
	}

	if !resp.OK() {
		e := &auth.Error{Op: "exchange", Kind: auth.ErrNonOkStatus, Status: resp.Status}
		if gjson.ValidBytes(resp.Body) {
			e.Message = firstString(resp.Body, "error", "message", "error.message")
		}
		logger.Warn("external auth rejected credentials", map[string]any{
			"status":  resp.Status,
			"message": e.Message,
		})
		return nil, e
	}

	if !gjson.ValidBytes(resp.Body) {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrMalformedResponseBody, Status: resp.Status}
	}

	// Some deployments answer 200 with an error document.
	if msg := firstString(resp.Body, "error"); msg != "" {
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrNonOkStatus, Status: resp.Status, Message: msg}
	}

	token := gjson.GetBytes(resp.Body, h.cfg.TokenPath).String()
	user := gjson.GetBytes(resp.Body, h.cfg.UserPath)
	if token == "" || !user.IsObject() {
		logger.Error("external auth response missing token or user", map[string]any{
			"token_present": token != "",
			"user_present":  user.IsObject(),
		})
		return nil, &auth.Error{Op: "exchange", Kind: auth.ErrInvalidResponseShape, Status: resp.Status}
	}

	identity := &auth.ExternalIdentity{
		Provider:    httpName,
		Identifier:  creds.Identifier,
		AccessToken: token,
		User: auth.ExternalUser{
			ID:       user.Get("id").String(),
			Username: user.Get("username").String(),
			Role:     user.Get("role").String(),
		},
	}

	logger.Info("external auth succeeded", map[string]any{
		"provider":     httpName,
		"user_id":      identity.User.ID,
		"has_username": identity.User.Username != "",
	})

	return identity, nil
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
