package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/account"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
)

const version = "0.1.0"

type deps struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	tokens   *auth.TokenManager
	accounts *account.Service
	patients *patient.Service
}

func (d *deps) close() {
	if d.redis != nil {
		d.redis.Close() //nolint:errcheck
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// connect opens the database (and Redis when lockout uses it) and builds the
// services on top.
func connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	d := &deps{pool: pool}

	d.tokens, err = auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTExpiration)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("token manager: %w", err)
	}

	profiles := patient.NewRepo(pool)
	d.patients = patient.NewService(profiles, logger.With().Str("component", "patient").Logger())
	d.accounts = account.NewService(
		account.NewRepo(pool),
		profiles,
		db.NewTransactor(pool),
		auth.NewHasher(cfg.BcryptCost),
		d.tokens,
		logger.With().Str("component", "account").Logger(),
	)

	if cfg.LoginMaxAttempts > 0 {
		store, client, err := lockoutStore(ctx, cfg.RedisURL)
		if err != nil {
			d.close()
			return nil, err
		}
		d.redis = client
		d.accounts.WithLockout(store, account.LockoutPolicy{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginLockoutWindow,
		})
		logger.Info().
			Int("max_attempts", cfg.LoginMaxAttempts).
			Dur("window", cfg.LoginLockoutWindow).
			Bool("redis", client != nil).
			Msg("login lockout enabled")
	}

	return d, nil
}

// lockoutStore picks Redis when a URL is configured so lockouts hold across
// replicas, and the in-process store otherwise. The client is nil for memory.
func lockoutStore(ctx context.Context, redisURL string) (account.LockoutStore, *redis.Client, error) {
	if redisURL == "" {
		return cache.NewMemoryLockoutStore(), nil, nil
	}
	client, err := cache.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisLockoutStore(client), client, nil
}

// newServer builds the echo instance with the global middleware chain and the
// health endpoints. API routes are added by registerRoutes.
func newServer(cfg *config.Config, logger zerolog.Logger, pinger db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}

	return e
}

// registerRoutes mounts /api/v1. Every route requires a bearer token except
// the public auth entry points, which are rate limited per client IP instead.
func registerRoutes(e *echo.Echo, cfg *config.Config, verifier auth.Verifier,
	accounts *account.Handler, patients *patient.Handler) {
	api := e.Group("/api/v1")
	api.Use(auth.JWTMiddleware(verifier, auth.AuthSkipper))

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}

	accounts.RegisterRoutes(api, middleware.RateLimit(rl))
	patients.RegisterRoutes(api)
}
