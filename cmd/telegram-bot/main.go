package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"tasklist/internal/config"
	"tasklist/internal/logger"
	"tasklist/internal/storage"
	"tasklist/internal/telegram"
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
		AppName: cfg.AppName + "-bot",
	})

	if err := cfg.RequireTelegram(); err != nil {
		logger.Error(ctx, err, "Telegram bot is not configured")
		os.Exit(1)
	}

	api, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.Debug)
	if err != nil {
		logger.Error(ctx, err, "Failed to connect to Telegram")
		os.Exit(1)
	}
	logger.Info(ctx, "Authorized", "bot", api.Self.UserName)

	sessions := storage.NewMemoryStorage(cfg.Sessions.IdleTimeout)
	go storage.RunSweeper(ctx, sessions, time.Minute)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		logger.Error(ctx, err, "Failed to get updates")
		os.Exit(1)
	}

	logger.Info(ctx, "Bot started")
	telegram.NewBot(api, sessions).Run(ctx, updates)
	logger.Info(context.Background(), "Bot stopped")
}
