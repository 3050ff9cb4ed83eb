package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgersync/cmd/ledgersync/cli"
	"github.com/odyssey-erp/ledgersync/internal/app"
	"github.com/odyssey-erp/ledgersync/internal/notify"
	"github.com/odyssey-erp/ledgersync/internal/observability"
	"github.com/odyssey-erp/ledgersync/internal/platform/cache"
	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/reconcile"
	"github.com/odyssey-erp/ledgersync/internal/settings"
	"github.com/odyssey-erp/ledgersync/internal/shared"
	"github.com/odyssey-erp/ledgersync/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.Connect(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, running without locks or settings cache", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var provider settings.Provider = settings.NewPGStore(pool)
	if cfg.SettingsCacheTTL > 0 && redisClient != nil {
		provider = settings.NewCachedProvider(settings.NewPGStore(pool), redisClient, cfg.SettingsCacheTTL)
	}

	var locker reconcile.Locker
	if cfg.LockTTL > 0 && redisClient != nil {
		locker = shared.NewRedisLocker(redisClient, cfg.LockTTL)
	}

	var notifier reconcile.Notifier
	var jobHealth http.HandlerFunc
	if !cfg.TestMode {
		queue := jobs.NewClient(cfg.Redis().Queue())
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
		notifier = notify.NewDispatcher(queue, notify.Channels{
			Push:  cfg.PushEnabled(),
			Email: cfg.EmailEnabled(),
		}, logger)

		inspector := asynq.NewInspector(cfg.Redis().Queue())
		defer inspector.Close()
		jobHealth = jobs.NewHandler(inspector, logger).Health
	}

	service := reconcile.NewService(
		reconcile.NewRepository(pool),
		provider,
		notifier,
		shared.NewAuditLogger(pool),
		locker,
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		Handler:   reconcile.NewHandler(service, logger),
		JobHealth: jobHealth,
		Metrics:   observability.NewMetrics(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobs handles "ledgersync jobs verify [kind...]" and "ledgersync jobs stats".
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ledgersync jobs verify [kind...] | stats")
	}
	c := cli.NewJobsCLI(cfg.Redis().Queue())
	defer c.Close()

	switch args[0] {
	case "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			return err
		}
		return cli.PrintStats(os.Stdout, stats)
	default:
		info, err := c.Trigger(ctx, args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	}
}
