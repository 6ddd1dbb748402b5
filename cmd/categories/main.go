// cmd/categories/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"categoryhub/internal/category"
	"categoryhub/internal/config"
	"categoryhub/internal/eventbus"
	"categoryhub/internal/telemetry"
	"categoryhub/pkg/eventstore"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("categoryhub stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("failed to shut down telemetry", "error", err)
		}
	}()

	sinks := []eventbus.Sink{eventbus.NewLogSink(logger)}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		es := eventstore.NewEventStore(db)
		if err := es.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, eventbus.NewJournalSink(es))
		logger.Info("event journal enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, eventbus.NewKafkaSink(eventbus.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)))
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	bus := eventbus.New(logger, sinks...)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("failed to close event bus", "error", err)
		}
	}()

	store := category.NewFileStore(cfg.DataFile)
	svc, err := category.NewService(ctx, store, bus, logger)
	if err != nil {
		return err
	}

	handler, err := category.NewHandler(svc, logger)
	if err != nil {
		return err
	}

	router, err := newRouter(cfg, handler, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting categoryhub", "addr", srv.Addr, "data_file", store.Path())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
