/**
 * @description
 * This is the main entry point for the camfinder server. It initializes and
 * wires together all the components of the application: configuration,
 * database connection, repository, event producer, admin gate, service, the
 * HTTP router and the lapse sweep scheduler. Finally, it starts the HTTP
 * server to listen for incoming requests and shuts everything down
 * gracefully on SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ivanod1994/camfinder-server/internal/api"
	"github.com/ivanod1994/camfinder-server/internal/app"
	"github.com/ivanod1994/camfinder-server/internal/auth"
	"github.com/ivanod1994/camfinder-server/internal/config"
	"github.com/ivanod1994/camfinder-server/internal/store"
	"github.com/ivanod1994/camfinder-server/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env for local development; ignore absence in production.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	repository, cleanup, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Event producer; fall back to a no-op publisher when the broker is
	// not configured or unreachable so the API keeps serving.
	var producer rabbitmq.Publisher = &rabbitmq.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.AMQPURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, subscription events disabled", "error", err)
		} else {
			producer = p
			logger.Info("rabbitmq producer connected")
		}
	}
	defer producer.Close()

	gate, err := buildAdminGate(cfg)
	if err != nil {
		logger.Error("failed to configure admin gate", "error", err)
		os.Exit(1)
	}

	// Initialize application layers
	service := app.NewService(repository, producer, logger, cfg.FreeAttempts)
	handlers := api.NewHandlers(service, cfg.Plans, cfg.Wallets, logger)
	router := api.NewRouter(handlers, gate)

	sweeper := app.NewLapseSweeper(repository, producer, logger, cfg.SweepSchedule)
	sweeper.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	<-sweeper.Stop().Done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// buildRepository connects to PostgreSQL when DATABASE_URL is configured and
// falls back to the in-memory store otherwise (local development only).
func buildRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; state will not survive restarts")
		return store.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Use simple protocol so the server works behind PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)
	if err := repository.Migrate(ctx); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}

	return repository, dbpool.Close, nil
}

// buildAdminGate assembles the admin gate from configuration. At least one
// credential mechanism must be configured.
func buildAdminGate(cfg config.Config) (auth.Gate, error) {
	var gates auth.MultiGate

	if cfg.AdminKey != "" {
		keyGate, err := auth.NewKeyGate(cfg.AdminKey)
		if err != nil {
			return nil, err
		}
		gates = append(gates, keyGate)
	}
	if cfg.AdminJWTSecret != "" {
		jwtGate, err := auth.NewJWTGate(cfg.AdminJWTSecret)
		if err != nil {
			return nil, err
		}
		gates = append(gates, jwtGate)
	}

	if len(gates) == 0 {
		return nil, fmt.Errorf("no admin credential configured: set ADMIN_KEY or ADMIN_JWT_SECRET")
	}
	return gates, nil
}
