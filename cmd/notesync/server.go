package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/config"
	"github.com/ehr/notesync/internal/domain/note"
	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/importer"
	"github.com/ehr/notesync/internal/platform/auth"
	"github.com/ehr/notesync/internal/platform/db"
	"github.com/ehr/notesync/internal/platform/logging"
	"github.com/ehr/notesync/internal/platform/middleware"
)

const version = "0.1.0"

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	logger, closer := logging.New(logging.Options{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()

	if err := cfg.ValidateServe(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := newPGApp(cfg, logger, pool, newLegacySource(cfg))

	sched, err := importer.NewScheduler(a.orchestrator, cfg.ImportSchedule, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create scheduler")
	}

	e := newServer(logger, a, sched, operatorAuth(cfg))
	e.GET("/health/db", db.HealthHandler(pool, db.NewMigrator(pool, migrationsFS(cfg))))

	if err := sched.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	if cfg.ImportOnStart {
		if err := sched.Trigger(ctx); err != nil {
			logger.Error().Err(err).Msg("import on start")
		}
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	// Scheduled runs observe ctx and finish as FAILED.
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("import still running at shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// operatorAuth returns the API auth middleware, or nil when no key is set.
func operatorAuth(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.OperatorSigningKey == "" {
		return nil
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.OperatorIssuer,
		SigningKey: []byte(cfg.OperatorSigningKey),
	})
}

// newServer builds the echo instance with middleware and the operator API.
// With authn nil the API is open and any caller may trigger runs.
func newServer(logger zerolog.Logger, a *app, trigger importer.Trigger, authn echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	apiV1 := e.Group("/api/v1")
	var triggerMW []echo.MiddlewareFunc
	if authn != nil {
		apiV1.Use(authn)
		triggerMW = append(triggerMW, auth.RequireRole(auth.OperatorRole))
	}
	importer.NewHandler(trigger, a.jobs).RegisterRoutes(apiV1, triggerMW...)
	person.NewHandler(a.persons).RegisterRoutes(apiV1)
	note.NewHandler(a.notes).RegisterRoutes(apiV1)

	return e
}
