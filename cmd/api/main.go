package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/property-vault/internal/adapters/http"
	"github.com/kirillkom/property-vault/internal/bootstrap"
	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/observability/logging"
	"github.com/kirillkom/property-vault/internal/observability/metrics"
)

const serviceName = "api"

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
		slog.Error("api_exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if cfg.JWTSecret == "dev-secret" {
		slog.Warn("jwt_secret_default", "hint", "set JWT_SECRET outside local development")
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	router := httpadapter.NewRouter(cfg, app.IngestUC, app.QueryUC).
		WithMetrics(httpMetrics, app.WorkerMetrics.Gatherer())

	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.APIReadHeaderTimeout,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		return fmt.Errorf("listen on :%s: %w", cfg.APIPort, err)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api_listening", "addr", listener.Addr().String(), "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if app.InProcessWorkers() {
		g.Go(func() error {
			slog.Info("workers_started", "concurrency", cfg.WorkerConcurrency)
			return app.Queue.Subscribe(gctx, app.HandleTask)
		})
	}
	g.Go(func() error {
		app.ReaperUC.Run(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.APIShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api_shutdown_failed", "error", err)
		}
		app.IngestUC.Wait()
		return nil
	})

	return g.Wait()
}
