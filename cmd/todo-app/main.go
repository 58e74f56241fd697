package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasklist/internal/config"
	"tasklist/internal/logger"
	"tasklist/internal/notifier"
	"tasklist/internal/server"
	"tasklist/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error(ctx, err, "Failed to load config")
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Writer:  os.Stdout,
		Level:   logger.ParseLevel(cfg.Log.Level),
		JSON:    cfg.Log.JSON,
		Color:   cfg.Log.Color,
		AppName: cfg.AppName,
	})

	sessions := storage.NewMemoryStorage(cfg.Sessions.IdleTimeout)
	go storage.RunSweeper(ctx, sessions, sweepInterval(cfg.Sessions.IdleTimeout))

	events := notifier.New(cfg.Sessions.StreamBuffer)
	defer events.Close()

	router := server.NewRouter(sessions, events, server.Options{
		SessionHeader:  cfg.HTTP.SessionHeader,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	})
	srv := server.NewServer(cfg.Addr(), router)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, err, "HTTP server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, err, "Graceful shutdown failed")
	}
	logger.Info(shutdownCtx, "Server stopped")
}

// sweepInterval - проверяем сессии в 4 раза чаще таймаута, но не реже раза в минуту
func sweepInterval(idle time.Duration) time.Duration {
	if idle <= 0 {
		return 0
	}
	interval := idle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
