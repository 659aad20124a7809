package main // Entry point package

import (
	"context"   // cancellation and deadlines
	"errors"    // error wrapping and matching
	"fmt"       // formatted errors and strings
	"net/http"  // HTTP status codes and primitives
	"os"        // environment and file access
	"os/signal" // shutdown on SIGINT/SIGTERM
	"syscall"   // signal numbers
	"time"      // timeouts and timestamps

	"github.com/labstack/echo/v4"                   // Echo framework for HTTP routing
	echomw "github.com/labstack/echo/v4/middleware" // Echo built-in middleware

	"github.com/iliyamo/auth-session/internal/config"     // app configuration
	"github.com/iliyamo/auth-session/internal/database"   // SQL connection and migrations
	"github.com/iliyamo/auth-session/internal/handler"    // HTTP handlers
	"github.com/iliyamo/auth-session/internal/logging"    // structured logger
	"github.com/iliyamo/auth-session/internal/middleware" // auth middleware
	"github.com/iliyamo/auth-session/internal/queue"      // AMQP event publisher and consumer
	"github.com/iliyamo/auth-session/internal/repository" // account stores
	"github.com/iliyamo/auth-session/internal/router"     // route registration
	"github.com/iliyamo/auth-session/internal/service"    // auth state machine
	"github.com/iliyamo/auth-session/internal/utils"      // helper functions (hashing, token issuing)
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.SlogLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var events service.EventPublisher = service.NoopPublisher{}
	if cfg.AMQPEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, cfg.EventsQueue)
		defer pub.Close()
		events = pub

		consumer := &queue.Consumer{
			URL:    cfg.AMQPURL,
			Queue:  cfg.EventsQueue,
			LogDir: cfg.EventsLogDir,
			Log:    logger.With("component", "auth-consumer"),
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "auth event consumer stopped", "err", err)
			}
		}()
	}

	svc := service.NewAuthService(
		store,
		utils.NewPasswordHasher(cfg.BcryptCost),
		utils.NewTokenIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL),
		service.Options{
			RotateRefresh: cfg.RotateRefresh,
			Events:        events,
			Logger:        logger.With("component", "auth"),
		},
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc, cfg.CookieSecure), svc)

	return runServer(ctx, e, ":"+cfg.Port, cfg, logger)
}

// openStore builds the account store for cfg.StoreDriver.  The returned
// close function releases the underlying connection.
func openStore(ctx context.Context, cfg config.Config, logger logging.Logger) (repository.AccountStore, func(), error) {
	if cfg.StoreDriver == config.DriverRedis {
		rdb, err := config.NewRedisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "account store ready", "driver", cfg.StoreDriver)
		return repository.NewRedisAccountStore(rdb, cfg.RedisPrefix), func() { _ = rdb.Close() }, nil
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db.DB, cfg.StoreDriver); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	schema, err := repository.SchemaByName(cfg.AccountSchema)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := repository.NewSQLAccountStore(db, schema)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info(ctx, "account store ready", "driver", cfg.StoreDriver, "table", schema.Table)
	return store, func() { _ = db.Close() }, nil
}

func runServer(ctx context.Context, e *echo.Echo, addr string, cfg config.Config, logger logging.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		serverErrors <- e.Start(addr)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(shutdownCtx, "server stopped")
	return nil
}
