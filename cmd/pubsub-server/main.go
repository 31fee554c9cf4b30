// Package main provides the broker server executable: the REST API plus the
// background reaper that reclaims lapsed leases and retires expired messages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/broker"
	"github.com/coregx/broker/adapters/memory"
	"github.com/coregx/broker/adapters/relica"
	"github.com/coregx/broker/cmd/pubsub-server/internal/api"
	"github.com/coregx/broker/cmd/pubsub-server/internal/config"
	"github.com/coregx/broker/cmd/pubsub-server/internal/docs"
	"github.com/coregx/broker/internal/logging"
	"github.com/coregx/broker/migrations"
)

//go:generate swag init -g main.go -d ./,./internal/api -o internal/docs --outputTypes go

const version = "0.2.0"

// @title Broker API
// @version 0.2.0
// @description Pull-based publish/subscribe: publish fans out one copy per subscription, pull leases messages, acknowledge finalizes them.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		FormatJSON: cfg.Logger.FormatJSON,
		Rotation: logging.Rotation{
			File:       cfg.Logger.Rotation.File,
			MaxSize:    cfg.Logger.Rotation.MaxSize,
			MaxBackups: cfg.Logger.Rotation.MaxBackups,
			MaxAge:     cfg.Logger.Rotation.MaxAge,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting broker server",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("memory", cfg.Database.Memory),
		zap.String("driver", cfg.Database.DriverName()),
		zap.Duration("message_ttl", cfg.Broker.MessageTTL),
		zap.Duration("lease_duration", cfg.Broker.LeaseDuration),
		zap.Int("pull_batch", cfg.Broker.PullBatch),
		zap.Duration("sweep_interval", cfg.Broker.SweepInterval),
	)

	logger := logging.NewZapLogger(log)

	repos, closeStore, err := openRepositories(cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifications broker.NotificationService = &broker.NoOpNotificationService{}
	if cfg.Broker.EnableNotifications {
		notifications = broker.NewLoggingNotificationService(logger)
	}

	b, err := broker.New(
		broker.WithRepositories(repos),
		broker.WithLogger(logger),
		broker.WithNotifications(notifications),
		broker.WithMessageTTL(cfg.Broker.MessageTTL),
		broker.WithLeaseDuration(cfg.Broker.LeaseDuration),
		broker.WithPullBatch(cfg.Broker.PullBatch),
		broker.WithSweepInterval(cfg.Broker.SweepInterval),
	)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}

	var routerOpts []api.RouterOption
	if cfg.Server.EnableDocs {
		docs.SwaggerInfo.Version = version
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
		routerOpts = append(routerOpts, api.WithDocs())
		log.Info("API docs enabled", zap.String("path", "/api/v1/swagger/index.html"))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(api.NewHandler(b, logger, version), log, routerOpts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Reaper().Start(gctx)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openRepositories returns the configured store and a func releasing it.
func openRepositories(cfg config.DatabaseConfig, log *zap.Logger) (*broker.Repositories, func(), error) {
	if cfg.Memory {
		log.Warn("Using in-memory store; nothing survives a restart")
		return memory.NewRepositories(), func() {}, nil
	}

	driver := cfg.DriverName()
	db, err := sql.Open(driver, cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database", zap.Error(err))
		}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if driver == "sqlite3" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established", zap.String("driver", driver))

	if cfg.AutoMigrate {
		if err := migrations.Apply(db, driver); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		if v, _, err := migrations.Version(db, driver); err == nil {
			log.Info("Schema up to date", zap.Uint("version", v))
		}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = relica.DefaultTablePrefix
	}
	if cfg.AutoMigrate && prefix != relica.DefaultTablePrefix {
		log.Warn("Migrations create pubsub_ tables; custom prefix must match an existing schema",
			zap.String("prefix", prefix))
	}

	return relica.NewRepositoriesWithPrefix(db, driver, prefix), closeDB, nil
}
