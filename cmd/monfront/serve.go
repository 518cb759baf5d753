package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcus-qen/monfront/internal/frontend/server"
	"github.com/marcus-qen/monfront/internal/logging"
	"github.com/marcus-qen/monfront/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build server", zap.Error(err))
		return err
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
