package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victorxys/dify-0.15.3/internal/auth/credentials"
	"github.com/victorxys/dify-0.15.3/internal/auth/exchanger"
	"github.com/victorxys/dify-0.15.3/internal/auth/handler"
	"github.com/victorxys/dify-0.15.3/internal/auth/provisioner"
	"github.com/victorxys/dify-0.15.3/internal/auth/resolver"
	"github.com/victorxys/dify-0.15.3/internal/config"
	"github.com/victorxys/dify-0.15.3/internal/httpclient"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/login"
	"github.com/victorxys/dify-0.15.3/internal/metrics"
	"github.com/victorxys/dify-0.15.3/internal/middleware"
	"github.com/victorxys/dify-0.15.3/internal/session"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := newRouter(ctx, cfg, infra)
	if err != nil {
		infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func newRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	m := metrics.New()

	var storage session.Storage = session.NewMemoryStorage()
	if infra.Redis != nil {
		storage = session.NewRedisStorage(infra.Redis.Client)
	}

	var identityResolver resolver.Resolver = resolver.Nop{}
	if infra.DB != nil {
		identityResolver = resolver.NewDBResolver(infra.DB)
	}

	ex, err := newExchanger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provCfg := provisioner.Config{
		APIPrefix:         cfg.Internal.APIPrefix,
		EmailDomain:       cfg.Internal.EmailDomain,
		PolicyPassword:    cfg.Internal.PolicyPassword,
		InterfaceLanguage: cfg.Internal.InterfaceLanguage,
	}
	if missing := provCfg.Missing(); len(missing) > 0 {
		// Not fatal: the login page still serves, every submit fails with
		// a configuration notice until this is fixed.
		logger.Error("internal account API not configured", map[string]any{
			"missing":                  missing,
			"operator_action_required": true,
		})
	}
	prov := provisioner.NewHTTP(provCfg, httpclient.New(httpclient.Config{
		Name:     "internal-api",
		Timeout:  cfg.Internal.Timeout,
		RetryMax: cfg.Internal.RetryMax,
	}))

	orchestrator := login.New(login.Config{
		Exchanger:   ex,
		Provisioner: prov,
		Resolver:    identityResolver,
		Metrics:     m,
		EmailDomain: cfg.Internal.EmailDomain,
		Landing:     cfg.Guard.DefaultLanding,
	})

	cookie := session.CookieOptions{
		Name:     cfg.Session.TokenKey,
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: cfg.Session.CookieHTTPOnly,
		Secure:   cfg.Session.CookieSecure,
	}

	guard := middleware.NewGuard(middleware.GuardConfig{
		ProtectedPrefixes: cfg.Guard.ProtectedPrefixes,
		LoginPath:         cfg.Guard.LoginPath,
		AllowQueryToken:   cfg.QueryTokenEnabled(),
		Cookie:            cookie,
		Metrics:           m,
	})
	if cfg.Guard.AllowQueryToken && !cfg.QueryTokenEnabled() {
		logger.Warn("GUARD_ALLOW_QUERY_TOKEN ignored outside development", nil)
	}

	authHandler := handler.NewHandler(handler.Config{
		Orchestrator: orchestrator,
		Storage:      storage,
		Cookie:       cookie,
		Guard:        guard,
		LoginPath:    cfg.Guard.LoginPath,
		LogoutPath:   cfg.Guard.LogoutPath,
		Landing:      cfg.Guard.DefaultLanding,
	})

	chat, err := handler.NewChatProxy(cfg.ChatUpstreamURL)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Router
	// ----------------------------

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.CSPEnabled() {
		router.Use(middleware.Gin(middleware.NewCSP(cfg.CSPWhitelist).Handler))
		logger.Info("content security policy enabled", nil)
	}

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// ----------------------------
	// Protected Routes
	// ----------------------------

	for _, prefix := range cfg.Guard.ProtectedPrefixes {
		group := router.Group(strings.TrimRight(prefix, "/"), middleware.GinRequireToken(guard))
		group.Any("", chat)
		group.Any("/*path", chat)
	}

	return router, nil
}

func newExchanger(ctx context.Context, cfg config.Config) (exchanger.Exchanger, error) {
	var list []exchanger.Exchanger

	switch cfg.External.Mode {
	case "mock":
		if !cfg.Development() {
			return nil, fmt.Errorf("mock exchanger is only available in development")
		}
		fixtures, err := credentials.DefaultFixtures()
		if cfg.MockAccountsJSON != "" {
			fixtures, err = credentials.ParseFixtures(cfg.MockAccountsJSON)
		}
		if err != nil {
			return nil, err
		}
		list = append(list, exchanger.NewMock(fixtures))
		logger.Warn("using mock external auth", nil)

	case "oidc":
		o, err := exchanger.NewOIDC(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.External.Timeout)
		if err != nil {
			return nil, err
		}
		list = append(list, o)

	default:
		headers := make(http.Header)
		for k, v := range cfg.External.Headers {
			headers.Set(k, v)
		}
		if cfg.External.APIKey != "" {
			headers.Set("X-API-Key", cfg.External.APIKey)
		}
		h, err := exchanger.NewHTTP(exchanger.HTTPConfig{
			URL:             cfg.External.URL,
			IdentifierField: cfg.External.IdentifierField,
			SecretField:     cfg.External.SecretField,
			ContextField:    cfg.External.ContextField,
			TokenPath:       cfg.External.TokenPath,
			UserPath:        cfg.External.UserPath,
			Client: httpclient.New(httpclient.Config{
				Name:     "external-auth",
				Timeout:  cfg.External.Timeout,
				RetryMax: cfg.External.RetryMax,
				Headers:  headers,
			}),
		})
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}

	registry := exchanger.NewRegistry(list...)
	ex, err := registry.Get(cfg.External.Mode)
	if err != nil {
		return nil, err
	}

	logger.Info("external auth configured", map[string]any{"mode": ex.Name()})
	return ex, nil
}
