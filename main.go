package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/app"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
	"github.com/ekaya-inc/nlq2sql/pkg/handlers"
	"github.com/ekaya-inc/nlq2sql/pkg/metrics"
	"github.com/ekaya-inc/nlq2sql/pkg/middleware"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("schema", cfg.Schema),
		zap.String("ner_provider", cfg.NER.Provider),
		zap.String("coding_provider", cfg.Coding.Provider),
		zap.String("translator_provider", cfg.Translator.Provider),
		zap.String("datasource", cfg.Datasource.Type),
		zap.Bool("feedback_database", cfg.Database.Enabled()),
		zap.Bool("redis", cfg.Redis.Host != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	application, err := app.New(startupCtx, cfg, logger, app.Options{})
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer application.Close()

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, application.Executor, logger).RegisterRoutes(mux)
	handlers.NewNLQHandler(application.Pipeline, application.Corrections, application.Feedback, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting nlq2sql", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// newLogger returns a JSON production logger outside local development.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
