// Package main runs the worklog HTTP service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openclock/worklog/internal/platform/config"
	"github.com/openclock/worklog/internal/platform/otel"
	"github.com/openclock/worklog/internal/worklog/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "worklog")
	if err != nil {
		config.Exitf("Error: setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("shutdown tracing")
		}
	}()

	srv, err := app.NewServer(cfg, logger)
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	if err := srv.Serve(ctx); err != nil {
		config.Exitf("Error: %v", err)
	}
}
