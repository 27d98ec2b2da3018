// Package app is the composition root: every service is constructed once
// here and passed by reference to its consumers, so nothing in the core
// reaches for a global.
package app

import (
	"context"
	"fmt"

	"surely-client/internal/config"
	"surely-client/internal/geo"
	"surely-client/internal/httpclient"
	"surely-client/internal/nav"
	"surely-client/internal/routeguard"
	codesService "surely-client/internal/service/codes"
	paymentService "surely-client/internal/service/payment"
	sessionService "surely-client/internal/service/session"
	"surely-client/internal/storage"
	"surely-client/internal/tokenstore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config    config.AppConfig
	Logger    *zap.Logger
	Navigator nav.Navigator

	Tokens   *tokenstore.Store
	API      *httpclient.Client
	Sessions *sessionService.Service
	Guard    *routeguard.Guard
	Payments *paymentService.Flow
	Codes    *codesService.Service

	redis *redis.Client
}

// New wires the client core. The navigator is supplied by the embedder — it
// is the page layer's view of where the user is.
func New(cfg config.AppConfig, navigator nav.Navigator, logger *zap.Logger) (*App, error) {
	ephemeral := storage.NewMemory()

	var persistent storage.Store
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := storage.NewRedisClient(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			PoolSize: 10,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up persistent tier: %w", err)
		}
		redisClient = client
		persistent = storage.NewRedis(client)
	} else {
		persistent = storage.NewFile(cfg.StatePath)
	}

	tokens := tokenstore.New(ephemeral, persistent, logger)

	api := httpclient.New(cfg.APIBaseURL, tokens, navigator, logger)
	api.SetTimeout(cfg.RequestTimeout)

	sessions := sessionService.New(api, tokens, navigator, logger)

	guard := routeguard.New(sessions, tokens, navigator, ephemeral, logger)
	guard.SetTimings(cfg.RefreshInterval, cfg.NearExpiryThreshold)

	geoClient := geo.New(cfg.GeoLookupURL, logger)
	payments := paymentService.New(api, geoClient, sessions, ephemeral, navigator, cfg.DefaultCountry, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Navigator: navigator,
		Tokens:    tokens,
		API:       api,
		Sessions:  sessions,
		Guard:     guard,
		Payments:  payments,
		Codes:     codesService.New(api, logger),
		redis:     redisClient,
	}, nil
}

// Start runs the page-load sequence: the synchronous route gate first, then
// the background refresh loop if a live token already exists.
func (a *App) Start(ctx context.Context) {
	a.Guard.CheckRouteAccess(ctx)
	if a.Tokens.Authenticated(ctx) {
		a.Guard.Start()
	}
}

// Close stops the background loop and releases resources.
func (a *App) Close() error {
	a.Guard.Stop()
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
