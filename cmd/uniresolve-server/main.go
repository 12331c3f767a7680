package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/logging"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/mail"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/notify"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/outbox"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/seed"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/server"
)

// @title UniResolve API
// @version 1.0
// @description Multi-tenant university complaint management.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT access token. Format: "Bearer {token}"

const memoryQueueSize = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "json")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(db)
	logger.Info().Str("driver", cfg.DB.Driver).Msg("database migrations completed")

	if cfg.SeedDemo {
		if _, err := seed.Demo(ctx, db, logger); err != nil {
			return err
		}
	}

	store, err := files.New(cfg.Store)
	if err != nil {
		return err
	}
	sender, err := mail.NewSender(cfg.SMTP, logger)
	if err != nil {
		return err
	}

	var queue outbox.Queue
	if cfg.Redis.URL != "" {
		client, err := outbox.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		queue = outbox.NewRedisQueue(client, cfg.Redis.QueueKey)
		logger.Info().Str("key", cfg.Redis.QueueKey).Msg("email outbox on redis")
	} else {
		queue = outbox.NewMemoryQueue(memoryQueueSize)
		logger.Info().Msg("email outbox in memory")
	}

	dispatcher := notify.NewDispatcher(db, queue, cfg.BaseURL, logger.With().Str("component", "notify").Logger())
	router := server.NewRouter(server.Deps{
		DB:         db,
		Tokens:     auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL),
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("starting uniresolve server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return outbox.NewWorker(queue, sender, logger.With().Str("component", "outbox").Logger()).Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Dur("interval", cfg.OverdueSweepInterval).Msg("overdue sweeper started")
		return dispatcher.RunSweeper(gctx, cfg.OverdueSweepInterval)
	})

	return g.Wait()
}
