// Package main is the entrypoint for the PagePulse API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/pagepulse/pagepulse/internal/analytics"
	"github.com/pagepulse/pagepulse/internal/cache"
	"github.com/pagepulse/pagepulse/internal/config"
	"github.com/pagepulse/pagepulse/internal/geoip"
	"github.com/pagepulse/pagepulse/internal/handler"
	"github.com/pagepulse/pagepulse/internal/mailer"
	"github.com/pagepulse/pagepulse/internal/metrics"
	"github.com/pagepulse/pagepulse/internal/middleware"
	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/monitor"
	"github.com/pagepulse/pagepulse/internal/repository"
	"github.com/pagepulse/pagepulse/internal/report"
	"github.com/pagepulse/pagepulse/internal/server"
)

func main() {
	ctx := context.Background()

	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache and ingest stream client
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()
	displayLoc := cfg.DisplayLocation()

	// Repositories
	visitorRepo := repository.NewVisitorRepository(repo)
	snapshotRepo := repository.NewSnapshotRepository(repo)
	configRepo := repository.NewReportConfigRepository(repo)

	// Ingestion pipeline
	publisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	geoClient := geoip.NewClient(cfg.GeoLookupURL, cfg.GeoLookupTimeout)
	geoResolver := geoip.NewResolver(geoClient, cacheClient, logger, recorder, cfg.GeoCacheTTL)
	worker := analytics.NewWorker(cacheClient.Client(), visitorRepo, geoResolver, logger, analytics.NewConsumerID(), recorder)

	// Reporting engine
	calculator := analytics.NewCalculator(visitorRepo, logger, cfg.ReportTimezone)
	senderFor := func(rc model.ReportConfig) mailer.Sender {
		return mailer.NewSMTPSender(rc, logger)
	}
	reportSvc := report.NewService(
		calculator, snapshotRepo, configRepo, senderFor,
		logger, recorder,
		cfg.ReportLookback, cfg.SnapshotRetention, displayLoc,
	)
	scheduler := report.NewScheduler(reportSvc, configRepo, logger, displayLoc)
	anomalyMonitor := monitor.NewMonitor(visitorRepo, configRepo, senderFor, logger, recorder, cfg.MonitorInterval)

	// Handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	trackHandler := handler.NewTrackHandler(publisher, logger)
	statsHandler := handler.NewStatsHandler(calculator, logger)
	reportHandler := handler.NewReportHandler(configRepo, scheduler, reportSvc, logger)
	adminHandler := handler.NewAdminHandler(visitorRepo, snapshotRepo, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	r := setupRouter(h, healthHandler, trackHandler, statsHandler, reportHandler, adminHandler, metricsHandler, cacheClient, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background loops. Registered before Run so they drain after the HTTP
	// server stops accepting requests (shutdown is LIFO).
	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("ping worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("ping_worker", worker.Shutdown)

	go func() {
		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("report scheduler stopped", "error", err)
		}
	}()
	srv.OnShutdown("report_scheduler", scheduler.Shutdown)

	go func() {
		if err := anomalyMonitor.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("anomaly monitor stopped", "error", err)
		}
	}()
	srv.OnShutdown("anomaly_monitor", anomalyMonitor.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"timezone", cfg.ReportTimezone,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	trackHandler *handler.TrackHandler,
	statsHandler *handler.StatsHandler,
	reportHandler *handler.ReportHandler,
	adminHandler *handler.AdminHandler,
	metricsHandler *handler.MetricsHandler,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	r.Use(middleware.Security(securityCfg))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Metrics (operational, no auth; keep off the public ingress)
	r.Get("/metrics", metricsHandler.Metrics)

	adminAuthCfg := middleware.AdminAuthConfig{
		Logger:    logger,
		TokenHash: cfg.AdminTokenHash,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Enabled: cfg.RateLimitTrackEnabled,
		RPS:     cfg.RateLimitTrackRPS,
		Burst:   cfg.RateLimitTrackBurst,
	}

	r.Route("/api", func(r chi.Router) {
		// Ingestion: anonymous, rate limited per IP. An admin token is
		// optional here and unlocks backfill fields.
		r.With(
			middleware.RateLimitIP(rateLimitCfg),
			middleware.MarkAdminIfAuthenticated(adminAuthCfg),
		).Post("/track", trackHandler.Track)

		// Public statistics
		r.Get("/stats", statsHandler.Stats)

		// Admin endpoints (require the admin token)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(adminAuthCfg))

			r.Get("/report-config", reportHandler.GetConfig)
			r.Put("/report-config", reportHandler.SaveConfig)
			r.Post("/report/trigger", reportHandler.Trigger)
			r.Post("/report/test", reportHandler.Test)
			r.Delete("/reset", adminHandler.Reset)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
