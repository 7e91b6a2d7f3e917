package app

import (
	"context"
	"fmt"
	"net/http"

	"keycloak-bridge/internal/auth/handler"
	"keycloak-bridge/internal/auth/provider/keycloak"
	"keycloak-bridge/internal/auth/resolver"
	"keycloak-bridge/internal/config"
	"keycloak-bridge/internal/db"
	"keycloak-bridge/internal/logger"
	"keycloak-bridge/internal/middleware"
	"keycloak-bridge/internal/session"
	"keycloak-bridge/internal/settings"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	settingsStore := settings.Layered{
		db.NewSettingsStore(infra.DB),
		settings.FromConfig(cfg),
	}

	keycloakProvider, err := newKeycloakProvider(ctx, cfg, settingsStore)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	flowStore := session.NewRedisFlowStore(infra.Redis.Client)

	engine := resolver.NewEngine(
		infra.DB,
		infra.DB,
		infra.DB,
		infra.DB,
		resolver.NewGroupAdminResolver(infra.DB, cfg.AdminGroupID),
	)

	authHandler := handler.NewHandler(
		keycloakProvider,
		sessionStore,
		flowStore,
		settingsStore,
		engine,
		infra.DB,
		handler.Options{
			Cookies: session.CookieOptions{
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			},
			SessionTTL: cfg.SessionTTL,
			IdleTTL:    cfg.SessionIdleTTL,
		},
	)

	authMiddleware := middleware.NewAuthMiddleware(sessionStore, cfg.SessionIdleTTL)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(middleware.ContextUserIDKey),
		})
	})

	for _, route := range router.Routes() {
		logger.Info("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}

	return router, infra.Close, nil
}

// newKeycloakProvider reads the client settings once; changing them
// requires a restart. The role mapping is read per request.
func newKeycloakProvider(ctx context.Context, cfg config.Config, s settings.Store) (*keycloak.Provider, error) {
	values := map[string]string{}
	for _, key := range []string{
		settings.KeyServerURL,
		settings.KeyRealm,
		settings.KeyClientID,
		settings.KeyClientSecret,
		settings.KeyEncryptionAlgorithm,
		settings.KeyEncryptionKey,
	} {
		v, err := s.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read setting %s: %w", key, err)
		}
		values[key] = v
	}

	return keycloak.New(ctx, keycloak.Options{
		ServerURL:           values[settings.KeyServerURL],
		Realm:               values[settings.KeyRealm],
		ClientID:            values[settings.KeyClientID],
		ClientSecret:        values[settings.KeyClientSecret],
		RedirectURL:         cfg.RedirectURL(),
		PublicURL:           cfg.KeycloakPublicURL,
		EncryptionAlgorithm: values[settings.KeyEncryptionAlgorithm],
		EncryptionKey:       values[settings.KeyEncryptionKey],
	})
}
