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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-ocr-gateway/internal/bus"
	"github.com/tendant/simple-ocr-gateway/internal/config"
	"github.com/tendant/simple-ocr-gateway/internal/gateway"
	"github.com/tendant/simple-ocr-gateway/internal/handler"
	"github.com/tendant/simple-ocr-gateway/internal/query"
	"github.com/tendant/simple-ocr-gateway/internal/server"
	"github.com/tendant/simple-ocr-gateway/internal/worker"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		fatal(logger, "gateway stopped", err)
	}
	logger.Info("gateway stopped")
}

// run serves until ctx is cancelled or the listener fails. Everything it
// opens is closed before it returns.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("gateway starting",
		"addr", cfg.Addr,
		"worker_url", cfg.WorkerURL,
		"max_file_size", cfg.Limits.MaxFileSize,
		"allowed_types", cfg.Limits.AllowedMediaTypes,
		"request_timeout", cfg.RequestTimeout,
		"auth", cfg.APIKey != "",
	)

	wc, err := worker.NewClient(worker.Config{
		BaseURL: cfg.WorkerURL,
		APIKey:  cfg.WorkerAPIKey,
		Timeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("build worker client: %w", err)
	}

	checks := map[string]handler.HealthCheck{"worker": wc.Ping}
	events := bus.Nop
	subjects := bus.NewSubjects(cfg.NATSSubjectPrefix)
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subjects", subjects.All)
		events = nc
		checks["nats"] = func(context.Context) error {
			if !nc.Connected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	gw := gateway.New(wc, cfg.Limits, logger, gateway.WithEvents(events, subjects), gateway.WithTimeout(cfg.RequestTimeout))
	q := query.New(wc, cfg.RequestTimeout, logger)
	router := server.NewServer(
		handler.NewOCRHandler(gw, q, cfg.Limits, cfg.MultipartMemory, logger),
		handler.NewHealthHandler(version, checks),
		cfg.APIKey,
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
