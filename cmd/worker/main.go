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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/property-vault/internal/bootstrap"
	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/observability/logging"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker_exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.QueueDriver != bootstrap.QueueNATS {
		return fmt.Errorf("worker requires QUEUE_DRIVER=%s, got %q", bootstrap.QueueNATS, cfg.QueueDriver)
	}

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.WorkerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
		return app.Queue.Subscribe(gctx, app.HandleTask)
	})
	g.Go(func() error {
		app.ReaperUC.Run(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
