package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keycloak-bridge/internal/app"
	"keycloak-bridge/internal/config"
	"keycloak-bridge/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Init()

	if err := run(); err != nil {
		logger.Fatal("keycloak-bridge exited", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("keycloak-bridge stopped cleanly", nil)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid log level, keeping info", map[string]any{
			"level": cfg.LogLevel,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Run()
	}()

	logger.Info("keycloak-bridge started", map[string]any{
		"port":     cfg.AppPort,
		"callback": cfg.RedirectURL(),
	})

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return application.Shutdown(shutdownCtx)
}
