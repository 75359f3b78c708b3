package main

import (
	"time"

	"github.com/pimedia/leadbot/internal/bot"
	"github.com/pimedia/leadbot/internal/server"
	"github.com/pimedia/leadbot/internal/session"
	"github.com/pimedia/leadbot/internal/storage"
	"github.com/pimedia/leadbot/internal/telegram"
	"github.com/pimedia/leadbot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Chat transport
	api, err := telegram.New(cfg.Telegram.Token, time.Duration(cfg.Telegram.SendTimeoutSec)*time.Second)
	if err != nil {
		logger.Fatal("Failed to create telegram client", zap.Error(err))
	}

	// Dialogue handler with its injected state
	sessions := session.NewStore(store)
	groups := bot.NewGroupSet()
	throttle := bot.NewLoginThrottle(cfg.Bot.LoginMaxAttempts,
		time.Duration(cfg.Bot.LoginWindowMin)*time.Minute)
	handler := bot.NewHandler(store, sessions, api, groups, throttle, logger)

	// New-lead fan-out
	notifier := bot.NewNotifier(store, api, logger)
	notifier.Start()
	defer notifier.Close()

	// Lead-ingestion API
	srv := server.New(store, notifier, logger, cfg.Server.AllowedOrigins)
	go func() {
		logger.Info("Starting ingest API", zap.String("addr", cfg.Server.Addr))
		if err := srv.Run(cfg.Server.Addr); err != nil {
			logger.Fatal("Ingest API error", zap.Error(err))
		}
	}()

	// Start the bot
	b := bot.New(api, handler, logger)
	logger.Info("Starting bot")
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
