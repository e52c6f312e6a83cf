package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	External ExternalAuth `envPrefix:"EXTERNAL_AUTH_"`
	OIDC     OIDC         `envPrefix:"OIDC_"`
	Internal Internal     `envPrefix:"INTERNAL_"`
	Session  Session      `envPrefix:"AUTH_"`
	Guard    Guard        `envPrefix:"GUARD_"`

	MockAccountsJSON string `env:"MOCK_AUTH_ACCOUNTS"`

	CSPWhitelist string `env:"CSP_WHITELIST"`

	ChatUpstreamURL string `env:"CHAT_UPSTREAM_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DatabaseDSN string `env:"DATABASE_DSN"`
}

// ExternalAuth describes the third-party HR system login endpoint.
type ExternalAuth struct {
	// Mode selects the exchanger variant: http, mock or oidc.
	Mode            string            `env:"MODE" envDefault:"http"`
	URL             string            `env:"URL"`
	APIKey          string            `env:"API_KEY"`
	Headers         map[string]string `env:"HEADERS" envSeparator:"," envKeyValSeparator:":"`
	Timeout         time.Duration     `env:"TIMEOUT" envDefault:"10s"`
	RetryMax        int               `env:"RETRY_MAX" envDefault:"0"`
	IdentifierField string            `env:"IDENTIFIER_FIELD" envDefault:"phone_number"`
	SecretField     string            `env:"SECRET_FIELD" envDefault:"password"`
	ContextField    string            `env:"CONTEXT_FIELD" envDefault:"chat_id"`
	TokenPath       string            `env:"TOKEN_PATH" envDefault:"access_token"`
	UserPath        string            `env:"USER_PATH" envDefault:"user"`
}

type OIDC struct {
	Issuer       string `env:"ISSUER"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Internal describes the chat application's own account API.
type Internal struct {
	APIPrefix         string        `env:"API_PREFIX"`
	EmailDomain       string        `env:"EMAIL_DOMAIN"`
	PolicyPassword    string        `env:"POLICY_PASSWORD"`
	InterfaceLanguage string        `env:"INTERFACE_LANGUAGE" envDefault:"zh-CN"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RetryMax          int           `env:"RETRY_MAX" envDefault:"2"`
}

type Session struct {
	TokenKey       string        `env:"TOKEN_KEY" envDefault:"auth_token"`
	MaxAge         time.Duration `env:"TOKEN_MAX_AGE" envDefault:"24h"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieHTTPOnly bool          `env:"COOKIE_HTTP_ONLY" envDefault:"false"`
}

type Guard struct {
	ProtectedPrefixes []string `env:"PROTECTED_PREFIXES" envSeparator:"," envDefault:"/chat"`
	LoginPath         string   `env:"LOGIN_PATH" envDefault:"/chat-login"`
	LogoutPath        string   `env:"LOGOUT_PATH" envDefault:"/chat-logout"`
	DefaultLanding    string   `env:"DEFAULT_LANDING" envDefault:"/chat"`
	AllowQueryToken   bool     `env:"ALLOW_QUERY_TOKEN" envDefault:"false"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Guard.ProtectedPrefixes = trimCSV(cfg.Guard.ProtectedPrefixes)
	return cfg, nil
}

func (c Config) Development() bool {
	return c.AppEnv == EnvDevelopment
}

// QueryTokenEnabled reports whether the guard may bootstrap a session from
// a ?token= parameter. Only development deployments may enable it.
func (c Config) QueryTokenEnabled() bool {
	return c.Guard.AllowQueryToken && c.Development()
}

// CSPEnabled reports whether the content-security-policy step is active.
func (c Config) CSPEnabled() bool {
	return c.CSPWhitelist != "" && c.AppEnv == EnvProduction
}

// Validate reports configuration that makes the process unable to serve
// logins at all. Missing internal API settings are not reported here: they
// surface loudly on the first login attempt instead.
func (c Config) Validate() error {
	var errs []error

	if c.Session.TokenKey == "" {
		errs = append(errs, errors.New("AUTH_TOKEN_KEY must not be empty"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_MAX_AGE must be positive"))
	}
	if !strings.HasPrefix(c.Guard.LoginPath, "/") {
		errs = append(errs, errors.New("GUARD_LOGIN_PATH must be an absolute path"))
	}
	if len(c.Guard.ProtectedPrefixes) == 0 {
		errs = append(errs, errors.New("GUARD_PROTECTED_PREFIXES must list at least one prefix"))
	}

	switch c.External.Mode {
	case "http":
		if c.External.URL == "" {
			errs = append(errs, errors.New("EXTERNAL_AUTH_URL is required in http mode"))
		}
	case "mock":
		if !c.Development() {
			errs = append(errs, errors.New("EXTERNAL_AUTH_MODE=mock requires APP_ENV=development"))
		}
	case "oidc":
		if c.OIDC.Issuer == "" || c.OIDC.ClientID == "" {
			errs = append(errs, errors.New("OIDC_ISSUER and OIDC_CLIENT_ID are required in oidc mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EXTERNAL_AUTH_MODE %q", c.External.Mode))
	}

	if c.ChatUpstreamURL != "" {
		if _, err := url.Parse(c.ChatUpstreamURL); err != nil {
			errs = append(errs, fmt.Errorf("CHAT_UPSTREAM_URL: %w", err))
		}
	}

	return errors.Join(errs...)
}

func trimCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
