package provisioner

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/httpclient"
	"github.com/victorxys/dify-0.15.3/internal/logger"
)

// Provisioner resolves an external identity into an internal chat account
// and returns a session grant for it. Implementations must be idempotent
// for the same identifier.
type Provisioner interface {
	Provision(ctx context.Context, identity *auth.ExternalIdentity) (*auth.Grant, error)
}

// Config holds the internal account API settings. Every field except
// InterfaceLanguage is required at call time.
type Config struct {
	APIPrefix         string
	EmailDomain       string
	PolicyPassword    string
	InterfaceLanguage string
}

// HTTP provisions accounts through the chat backend's register-or-login
// endpoint.
type HTTP struct {
	cfg    Config
	client *httpclient.Client
}

func NewHTTP(cfg Config, client *httpclient.Client) *HTTP {
	if cfg.InterfaceLanguage == "" {
		cfg.InterfaceLanguage = "zh-CN"
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	if client == nil {
		client = httpclient.New(httpclient.Config{Name: "internal-api"})
	}
	return &HTTP{cfg: cfg, client: client}
}

// Missing lists the required settings that are not configured.
func (c Config) Missing() []string {
	var missing []string
	if c.APIPrefix == "" {
		missing = append(missing, "INTERNAL_API_PREFIX")
	}
	if c.EmailDomain == "" {
		missing = append(missing, "INTERNAL_EMAIL_DOMAIN")
	}
	if c.PolicyPassword == "" {
		missing = append(missing, "INTERNAL_POLICY_PASSWORD")
	}
	return missing
}

// Email maps an external identifier to its internal account email. The
// mapping is stable so repeated logins land on the same account.
func Email(identifier, domain string) string {
	return strings.ToLower(strings.TrimSpace(identifier)) + "@" + strings.ToLower(domain)
}

// BuildPayload synthesizes the registration body for identity.
func BuildPayload(cfg Config, identity *auth.ExternalIdentity) auth.RegistrationPayload {
	name := identity.User.Username
	if name == "" {
		name = "User_" + identity.Identifier
	}
	lang := cfg.InterfaceLanguage
	if lang == "" {
		lang = "zh-CN"
	}
	return auth.RegistrationPayload{
		Email:             Email(identity.Identifier, cfg.EmailDomain),
		Name:              name,
		Password:          cfg.PolicyPassword,
		InterfaceLanguage: lang,
	}
}

func (h *HTTP) Provision(ctx context.Context, identity *auth.ExternalIdentity) (*auth.Grant, error) {
	if missing := h.cfg.Missing(); len(missing) > 0 {
		return nil, &auth.Error{
			Op:   "provision",
			Kind: auth.ErrMissingConfiguration,
			Err:  fmt.Errorf("unset: %s", strings.Join(missing, ", ")),
		}
	}
	if identity == nil || identity.Identifier == "" {
		return nil, &auth.Error{Op: "provision", Kind: auth.ErrInvalidResponseShape, Err: fmt.Errorf("identity without identifier")}
	}

	payload := BuildPayload(h.cfg, identity)

	resp, err := h.client.PostJSON(ctx, h.cfg.APIPrefix+"/register", payload)
	if err != nil {
		logger.Error("internal register request failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.Error{Op: "provision", Kind: auth.ErrNetworkFailure, Err: err}
	}

	valid := gjson.ValidBytes(resp.Body)

	if !resp.OK() {
		e := &auth.Error{Op: "provision", Kind: auth.ErrProvisionRejected, Status: resp.Status}
		if valid {
			e.Message = firstString(resp.Body, "error.message", "message", "error")
		}
		if e.Message == "" {
			e.Message = fmt.Sprintf("HTTP Error %d", resp.Status)
		}
		fields := map[string]any{
			"status":  resp.Status,
			"message": e.Message,
			"email":   payload.Email,
		}
		if resp.Status == http.StatusConflict {
			// The endpoint is expected to log existing accounts in.
			fields["contract_violation"] = "register endpoint is not register-or-login"
		}
		logger.Warn("internal register rejected", fields)
		return nil, e
	}

	if !valid {
		return nil, &auth.Error{Op: "provision", Kind: auth.ErrMalformedResponseBody, Status: resp.Status}
	}

	result := gjson.GetBytes(resp.Body, "result").String()
	access := gjson.GetBytes(resp.Body, "data.access_token").String()
	if result != "success" || access == "" {
		msg := firstString(resp.Body, "message", "error.message", "data")
		logger.Warn("internal register declined", map[string]any{
			"result":  result,
			"message": msg,
			"email":   payload.Email,
		})
		return nil, &auth.Error{Op: "provision", Kind: auth.ErrProvisionRejected, Status: resp.Status, Message: msg}
	}

	logger.Info("internal account ready", map[string]any{
		"email":       payload.Email,
		"has_refresh": gjson.GetBytes(resp.Body, "data.refresh_token").String() != "",
	})

	return &auth.Grant{
		AccessToken:  access,
		RefreshToken: gjson.GetBytes(resp.Body, "data.refresh_token").String(),
	}, nil
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
