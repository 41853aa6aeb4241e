// Package main contains the entrypoint for the botgram mirror daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/heofen/botgram/internal/bot"
	"github.com/heofen/botgram/internal/bot/tasks"
	"github.com/heofen/botgram/internal/config"
	"github.com/heofen/botgram/internal/database"
	"github.com/heofen/botgram/internal/ingest"
	"github.com/heofen/botgram/internal/logger"
	"github.com/heofen/botgram/internal/media"
	"github.com/heofen/botgram/internal/notify"
	"github.com/heofen/botgram/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// media cache, ingestion service, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	hub := notify.NewHub()

	svc := ingest.NewService(log, store, hub, cfg.Ingest.RestartDelay)

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(svc.Handler),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// A failed login is a configuration problem, not a transient outage.
	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	downloader := telegram.NewFileDownloader(tg, cfg.Telegram.Token, cfg.Media.DownloadTimeout, cfg.Media.MaxDownloadSizeByte)
	cache, err := media.NewCache(cfg.Media.Dir, cfg.Media.MaxConcurrent, downloader, log)
	if err != nil {
		log.Error("Failed to initialize media cache", "dir", cfg.Media.Dir, "error", err)
		return 1
	}
	svc.SetCache(cache)
	svc.SetTransport(tg)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Cache:  cache,
		Config: cfg,
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, store, svc, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
