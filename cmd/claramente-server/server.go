package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/config"
	"github.com/claramente/claramente/internal/domain/activity"
	"github.com/claramente/claramente/internal/domain/links"
	"github.com/claramente/claramente/internal/domain/risk"
	"github.com/claramente/claramente/internal/platform/auth"
	"github.com/claramente/claramente/internal/platform/cache"
	"github.com/claramente/claramente/internal/platform/db"
	"github.com/claramente/claramente/internal/platform/metrics"
	"github.com/claramente/claramente/internal/platform/middleware"
	"github.com/claramente/claramente/internal/platform/validate"
)

const (
	requestTimeout  = 15 * time.Second
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func riskOptions(cfg *config.Config) risk.Options {
	opts := risk.DefaultOptions()
	opts.DefaultWindowDays = cfg.RiskDefaultWindowDays
	opts.MaxWindowDays = cfg.RiskMaxWindowDays
	opts.RollupDays = cfg.RiskRollupDays
	return opts
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func sessionAuth(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthJWTSecret == "" && cfg.AuthJWKSURL == "" {
		return auth.DevAuthMiddleware()
	}
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthJWTSecret != "" {
		jc.SigningKey = []byte(cfg.AuthJWTSecret)
	}
	return auth.JWTMiddleware(jc)
}

// services is everything the routes need, built from a pool and config.
type services struct {
	recorder *risk.Recorder
	reader   *risk.SummaryReader
	links    *links.Service
	activity *activity.Service
}

func newServices(pool *pgxpool.Pool, summaryCache risk.SummaryCache, m *metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *services {
	opts := riskOptions(cfg)
	tx := db.NewTransactor(pool)
	riskRepo := risk.NewRepoPG(pool)

	rec := risk.NewRecorder(riskRepo, tx, logger, opts)
	rec.SetMetrics(m)
	reader := risk.NewSummaryReader(riskRepo, tx, logger, opts)
	reader.SetMetrics(m)
	if summaryCache != nil {
		rec.SetCache(summaryCache)
		reader.SetCache(summaryCache)
	}

	return &services{
		recorder: rec,
		reader:   reader,
		links:    links.NewService(links.NewRepoPG(pool), logger),
		activity: activity.NewService(activity.NewRepoPG(pool), logger),
	}
}

// newEcho builds the HTTP server: middleware chain, health and metrics
// endpoints, and the domain routes.
func newEcho(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, health db.Pinger, svc *services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Metrics(m))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(sessionAuth(cfg))
	var auditRecorders []middleware.AuditRecorder
	if svc.activity != nil {
		auditRecorders = append(auditRecorders, svc.activity)
	}
	e.Use(middleware.Audit(logger, auditRecorders...))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":   true,
			"data": map[string]string{"status": "ok"},
		})
	})
	e.GET("/health/db", db.HealthHandler(health, healthTimeout))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	rl := middleware.RateLimit(rateLimitConfig(cfg))
	apiV1 := e.Group("/api/v1", rl)
	internal := e.Group("/internal", auth.InternalSecret(cfg.InternalRiskSecret), rl)

	riskHandler := risk.NewHandler(svc.recorder, svc.reader, svc.links, riskOptions(cfg), logger)
	riskHandler.SetMetrics(m)
	riskHandler.RegisterRoutes(apiV1, internal)
	links.NewHandler(svc.links).RegisterRoutes(apiV1)
	activity.NewHandler(svc.activity).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "claramente-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var summaryCache risk.SummaryCache
	if cfg.CacheEnabled() {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			// The cache only saves reads; serve without it.
			logger.Warn().Err(err).Msg("redis unavailable, summary cache disabled")
		} else {
			defer client.Close()
			summaryCache = risk.NewRedisSummaryCache(cache.NewHash(client), cfg.SummaryCacheTTL)
			logger.Info().Dur("ttl", cfg.SummaryCacheTTL).Msg("summary cache enabled")
		}
	}

	m := metrics.New()
	e := newEcho(cfg, logger, m, pool, newServices(pool, summaryCache, m, cfg, logger))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
