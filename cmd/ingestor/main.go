package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/facturo/ingesta/internal/adapters/http"
	"github.com/facturo/ingesta/internal/bootstrap"
	"github.com/facturo/ingesta/internal/config"
	"github.com/facturo/ingesta/internal/infrastructure/scheduler"
	"github.com/facturo/ingesta/internal/infrastructure/watch"
	"github.com/facturo/ingesta/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("ingestor", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.WatchDir, 0o755); err != nil {
		log.Fatalf("create watch dir: %v", err)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// The watcher feeds the scheduler and the scheduler releases or parks
	// paths on the watcher, so one side is wired through a closure.
	var sched *scheduler.Scheduler
	watcher := watch.NewWatcher(cfg.WatchDir, cfg.ScanInterval, func(path string) {
		sched.Enqueue(path)
	})
	sched = scheduler.New(scheduler.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		Workers:     cfg.WorkerCount,
		DoneDir:     cfg.DoneDir,
		FailedDir:   cfg.FailedDir,
	}, app.IngestUC, app.DeadLetters, app.Documents, watcher, app.Metrics)

	adminRouter := httpadapter.NewRouter(
		app.Tenants,
		watcher.ReleaseParked,
		app.DeadLetters,
		app.ReassignUC,
		app.Documents,
		app.Storage,
		cfg.PresignTTL,
	)
	adminServer := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      adminRouter.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: app.Metrics.Handler(),
	}

	go func() {
		slog.Info("admin_listening", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server error: %v", err)
		}
	}()
	go func() {
		slog.Info("metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("scheduler error: %v", err)
		}
	}()

	slog.Info("watching", "dir", cfg.WatchDir, "workers", cfg.WorkerCount)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("watcher error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin_shutdown_error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics_shutdown_error", "error", err)
	}
}
