package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/pkordes/trip-scheduler/internal/config"
	"github.com/pkordes/trip-scheduler/internal/handler"
	"github.com/pkordes/trip-scheduler/internal/metrics"
	"github.com/pkordes/trip-scheduler/internal/middleware"
	"github.com/pkordes/trip-scheduler/internal/notify"
	"github.com/pkordes/trip-scheduler/internal/push"
	"github.com/pkordes/trip-scheduler/internal/repo"
	"github.com/pkordes/trip-scheduler/internal/service"
	"github.com/pkordes/trip-scheduler/migrations"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply pending migrations and start the HTTP server",
	RunE:  runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on startup")
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// --- Logger -----------------------------------------------------------
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the ping below does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	if !skipMigrate {
		if err := migrateUp(ctx, pool, logger); err != nil {
			return err
		}
	}

	// --- Notifications ----------------------------------------------------
	sender, closeSender, err := newSender(cfg.Push, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSender.Close(); err != nil {
			logger.Error("push sender close", "error", err)
		}
	}()

	templates := notify.DefaultTemplates()
	if cfg.Notify.TemplatesFile != "" {
		if templates, err = notify.LoadTemplates(cfg.Notify.TemplatesFile); err != nil {
			return err
		}
	}

	schedules := repo.NewScheduleRepo(pool)
	requests := repo.NewTripRequestRepo(pool)
	fleet := repo.NewFleetRepo(pool)
	recipients := repo.NewRecipientRepo(pool)

	fanout := notify.NewFanout(requests, fleet, recipients, sender, notify.FanoutConfig{
		Templates:       templates,
		OperationsRoles: cfg.Notify.OpsRoles,
	}, logger)
	dispatcher := notify.NewDispatcher(fanout, notify.DispatcherConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
	}, logger)
	go drainErrors(ctx, dispatcher.Errors(), logger)

	// --- Services ---------------------------------------------------------
	availability := service.NewAvailabilityService(schedules, notify.NewDescriber(requests, fleet, logger), cfg.DefaultTripDuration)
	scheduleSvc := service.NewScheduleService(repo.NewTxRunner(pool), schedules, requests, fleet, availability, dispatcher)

	// --- Router -----------------------------------------------------------
	// Middleware order: RequestID → RealIP → Logger → Metrics → Recoverer → CORS → body limit.
	metrics.RegisterDefault()
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(middleware.NewMetrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	handler.NewServer(scheduleSvc, availability, pool, logger).Routes(r)

	// --- HTTP Server ------------------------------------------------------
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give in-flight requests, then queued notifications, 15 seconds in total.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notification queue abandoned", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// newLogger builds the JSON slog logger. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newSender selects the push transport named by cfg.Mode.
func newSender(cfg config.PushConfig, logger *slog.Logger) (push.Sender, io.Closer, error) {
	switch cfg.Mode {
	case config.PushModeHTTP:
		logger.Info("push via http gateway", "url", cfg.URL)
		return push.NewHTTPSender(cfg.URL, cfg.APIKey, cfg.RatePerSec), nopCloser{}, nil
	case config.PushModeRedis:
		s, err := push.NewRedisSender(cfg.RedisURL, cfg.Channel)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("push via redis", "channel", cfg.Channel)
		return s, s, nil
	default:
		logger.Info("push disabled, logging notifications only")
		return push.NewLogSender(logger), nopCloser{}, nil
	}
}

// drainErrors keeps the dispatcher's error channel flowing. Failures are
// already logged by the dispatcher; this only surfaces them at debug level
// with the server context attached.
func drainErrors(ctx context.Context, errs <-chan error, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			logger.DebugContext(ctx, "notification task failed", "error", err)
		}
	}
}

// migrateUp applies pending migrations through a database/sql handle that
// shares the pgx pool.
func migrateUp(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		logger.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}
