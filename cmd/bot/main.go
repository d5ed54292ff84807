package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	maxbot "github.com/max-messenger/max-bot-api-client-go"
	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/bot"
	"github.com/Zhun1s/TomatoBot/internal/config"
	"github.com/Zhun1s/TomatoBot/internal/engine"
	"github.com/Zhun1s/TomatoBot/internal/handlers"
	"github.com/Zhun1s/TomatoBot/internal/logger"
	"github.com/Zhun1s/TomatoBot/internal/pomodoro"
	"github.com/Zhun1s/TomatoBot/internal/reminder"
	"github.com/Zhun1s/TomatoBot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.Logger.Level, Encoding: cfg.Logger.Encoding})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("storage init failed", zap.Error(err))
	}
	defer closeStore()

	api, err := maxbot.New(cfg.BotToken)
	if err != nil {
		zl.Fatal("max client init failed", zap.Error(err))
	}
	if botInfo, err := api.Bots.GetBot(ctx); err != nil {
		zl.Warn("failed to get bot info", zap.Error(err))
	} else {
		fmt.Printf("🤖 Bot: %s\n", botInfo.Name)
	}

	sender := bot.NewClient(api, zl)

	scheduler := pomodoro.New(store, sender, zl)
	eng := engine.New(store, sender, scheduler, zl)
	scheduler.SetConfirmer(eng)
	handler := handlers.New(store, sender, eng, scheduler, zl)

	resolve := func(ctx context.Context, userID string) (int64, bool) {
		user, err := store.GetUser(ctx, userID)
		if err != nil || user.ChatID == 0 {
			return 0, false
		}
		return user.ChatID, true
	}
	scanner := reminder.New(store, sender, resolve, zl, reminder.Config{
		Interval:  cfg.Reminder.Interval,
		Lookahead: cfg.Reminder.Lookahead,
	})
	scanner.Start()

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
		<-exit
		fmt.Println("\n🛑 Shutting down bot...")
		cancel()
	}()

	fmt.Println("🚀 Starting to process updates...")

	for update := range api.GetUpdates(ctx) {
		ev, ok := bot.ToEvent(update)
		if !ok {
			continue
		}
		handler.HandleEvent(ctx, ev)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	scanner.Stop(stopCtx)

	fmt.Println("👋 Bot stopped")
}

// openStore prefers Mongo and falls back to the in-memory store when no URI
// is configured, so the bot can run locally without a database.
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.Store, func(), error) {
	if cfg.Mongo.URI == "" {
		zl.Warn("MONGO_URI not set, using in-memory storage")
		return storage.NewMemoryStorage(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoStore, err := storage.NewMongoStorage(connectCtx, cfg.Mongo.URI, cfg.Mongo.Name)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoStore.Close(closeCtx); err != nil {
			zl.Error("mongo disconnect failed", zap.Error(err))
		}
	}
	zl.Info("connected to mongodb", zap.String("db", cfg.Mongo.Name))
	return mongoStore, closeFn, nil
}
