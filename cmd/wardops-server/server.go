package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/config"
	"github.com/wardops/wardops/internal/domain/billing"
	"github.com/wardops/wardops/internal/domain/inpatient"
	"github.com/wardops/wardops/internal/domain/opd"
	"github.com/wardops/wardops/internal/platform/cache"
	"github.com/wardops/wardops/internal/platform/db"
	"github.com/wardops/wardops/internal/platform/extraction"
	"github.com/wardops/wardops/internal/platform/middleware"
	"github.com/wardops/wardops/internal/platform/reporting"
	"github.com/wardops/wardops/internal/platform/telemetry"
	"github.com/wardops/wardops/internal/platform/webhook"
	"github.com/wardops/wardops/internal/platform/websocket"
	"github.com/wardops/wardops/migrations"
)

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// newEcho builds the server with the global middleware chain. Logging and
// recovery wrap everything else so panics and timeouts still produce an
// access line.
func newEcho(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Collector) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(telemetry.TracingMiddleware("wardops"))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader, "traceparent"},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.Audit(logger, metrics))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler())
	return e
}

// apiGroup is /api/v1 with rate limiting and the request deadline.
func apiGroup(e *echo.Echo, cfg *config.Config) *echo.Group {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return e.Group("/api/v1", middleware.RateLimit(rl), middleware.RequestTimeout(cfg.RequestTimeout))
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	ctx = logger.WithContext(ctx)

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
		TracingEnabled: cfg.TracingEnabled,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "wardops",
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	migrator := db.NewMigrator(pool, migrations.FS)
	applied, err := migrator.Up(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("migrations failed")
		return err
	}
	logger.Info().Int("applied", applied).Msg("schema up to date")

	// A nil *redis.Client must not reach the Cmdable interface.
	var rdb redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, report cache disabled")
		} else {
			defer client.Close()
			rdb = client
			logger.Info().Msg("connected to redis")
		}
	}

	metrics := telemetry.NewCollector("wardops")
	registerPoolGauges(metrics, pool)

	hub := websocket.NewHub(logger)
	metrics.GaugeFunc("wardops", "ws", "clients", "Connected websocket clients.", func() float64 {
		return float64(hub.ClientCount())
	})
	publishers := websocket.Fanout{hub}

	endpoints, err := webhook.ParseEndpoints(cfg.WebhookURLs, cfg.WebhookSecret, cfg.WebhookEvents)
	if err != nil {
		return err
	}
	var dispatcher *webhook.Dispatcher
	if len(endpoints) > 0 {
		dispatcher = webhook.NewDispatcher(endpoints, cfg.WebhookTimeout, webhook.WithLogger(logger))
		publishers = append(publishers, dispatcher)
		go dispatcher.Run(ctx)
		logger.Info().Int("endpoints", len(endpoints)).Msg("webhook delivery enabled")
	}
	events := metrics.CountingPublisher(publishers)

	e := newEcho(cfg, logger, metrics)
	api := apiGroup(e, cfg)

	tx := db.NewTransactor(pool)
	bedRepo := inpatient.NewBedRepoPG(pool)
	patientRepo := inpatient.NewPatientRepoPG(pool)
	summaryRepo := inpatient.NewSummaryRepoPG(pool)

	billingSvc := billing.NewService(
		billing.NewExpenseRepoPG(pool),
		billing.NewPaymentRepoPG(pool),
		patientRepo,
		summaryRepo,
		tx,
	)
	billingSvc.SetEventPublisher(events)

	inpatientSvc := inpatient.NewService(bedRepo, patientRepo, summaryRepo, tx, billingSvc)
	inpatientSvc.SetEventPublisher(events)
	if cfg.ExtractorURL != "" {
		inpatientSvc.SetExtractor(extraction.NewClient(cfg.ExtractorURL, cfg.ExtractorTimeout))
		logger.Info().Str("url", cfg.ExtractorURL).Msg("document extraction enabled")
	}

	opdSvc := opd.NewService(opd.NewVisitRepoPG(pool), tx)
	opdSvc.SetEventPublisher(events)

	reportSvc := reporting.NewService(reporting.NewPGSource(pool), rdb, cfg.ReportCacheTTL)

	handlers := []routeRegistrar{
		inpatient.NewHandler(inpatientSvc, billingSvc, cfg.HospitalName),
		billing.NewHandler(billingSvc),
		opd.NewHandler(opdSvc),
		reporting.NewHandler(reportSvc),
	}
	if dispatcher != nil {
		handlers = append(handlers, webhook.NewHandler(dispatcher))
	}
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))
	e.GET("/health/db", db.HealthHandler(pool, migrator))
	if rdb != nil {
		e.GET("/health/redis", cache.HealthHandler(rdb))
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func registerPoolGauges(m *telemetry.Collector, pool *pgxpool.Pool) {
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) {
		m.GaugeFunc("wardops", "db", name, help, func() float64 { return fn(pool.Stat()) })
	}
	gauge("pool_total_conns", "Open pool connections.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) })
	gauge("pool_acquired_conns", "Connections currently in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) })
	gauge("pool_idle_conns", "Idle pool connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) })
	gauge("pool_max_conns", "Configured pool size.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) })
}
