package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgersync/internal/app"
	jobmetrics "github.com/odyssey-erp/ledgersync/internal/jobs"
	"github.com/odyssey-erp/ledgersync/internal/notify"
	"github.com/odyssey-erp/ledgersync/internal/observability"
	"github.com/odyssey-erp/ledgersync/internal/platform/cache"
	"github.com/odyssey-erp/ledgersync/internal/platform/db"
	"github.com/odyssey-erp/ledgersync/internal/reconcile"
	"github.com/odyssey-erp/ledgersync/internal/settings"
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
	if cfg.TestMode {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var provider settings.Provider = settings.NewPGStore(pool)
	if cfg.SettingsCacheTTL > 0 {
		var redisClient *redis.Client
		if redisClient, err = cache.Connect(ctx, cfg.Redis()); err != nil {
			logger.Warn("redis unavailable, settings cache disabled", slog.Any("error", err))
		} else {
			defer redisClient.Close()
			provider = settings.NewCachedProvider(settings.NewPGStore(pool), redisClient, cfg.SettingsCacheTTL)
		}
	}

	registry := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(registry.Registerer())
	if cfg.WorkerMetricsAddr != "" {
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, registry.Handler(), logger)
	}
	// Verify only reads, so the service runs without notifier, audit or locker.
	service := reconcile.NewService(reconcile.NewRepository(pool), provider, nil, nil, nil, logger)
	verifyJob := jobs.NewVerifyJob(service, cfg.VerifyLookback, cfg.VerifyParallel, logger, metrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskReconcileVerify, Handler: verifyJob.Handle},
	}
	if cfg.PushEnabled() {
		push := &jobs.PushSender{URL: cfg.NotifyPushURL, Logger: logger, Metrics: metrics}
		handlers = append(handlers, jobs.TaskHandler{Type: notify.TaskPush, Handler: push.Handle})
	}
	if cfg.EmailEnabled() {
		email := &jobs.EmailSender{
			Host:    cfg.SMTPHost,
			Port:    cfg.SMTPPort,
			From:    cfg.SMTPFrom,
			To:      splitRecipients(cfg.NotifyEmailTo),
			Logger:  logger,
			Metrics: metrics,
		}
		handlers = append(handlers, jobs.TaskHandler{Type: notify.TaskEmail, Handler: email.Handle})
	}

	var cron []jobs.CronRegistration
	if cfg.VerifyCron != "" {
		verifyTask, err := jobs.NewVerifyTask(jobs.VerifyPayload{})
		if err != nil {
			logger.Error("build verify task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.VerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(2)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().Queue(),
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("serving worker metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("worker metrics server", slog.Any("error", err))
	}
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
