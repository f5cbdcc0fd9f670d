package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"doni-bot/internal/bot"
	"doni-bot/internal/completion"
	"doni-bot/internal/config"
	"doni-bot/internal/health"
	"doni-bot/internal/logger"
	"doni-bot/internal/prompt"
	"doni-bot/internal/repository"
	"doni-bot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may be set by the host.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("Shutdown complete.")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	turnRepo := repository.NewTurnRepository(db)

	if cfg.CompletionAPIKey() == "" {
		log.Warn().Str("backend", cfg.CompletionBackend).Msg("completion API key is missing, replies will be error notices")
	}
	completer, err := completion.New(cfg.CompletionBackend, completion.Options{
		APIKey:      cfg.CompletionAPIKey(),
		BaseURL:     cfg.CompletionBaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Timeout:     cfg.CompletionTimeout,
	})
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	relay := service.NewRelayService(userRepo, turnRepo, completer, service.RelayOptions{
		Persona:          prompt.Persona,
		HistoryLimit:     cfg.HistoryLimit,
		SerializePerUser: cfg.SerializePerUser,
	}, log.With().Str("component", "relay").Logger())

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, relay, log.With().Str("component", "bot").Logger())
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	if cfg.StatsInterval > 0 {
		stats := service.NewStatsService(userRepo, turnRepo, log.With().Str("component", "stats").Logger())
		scheduler := service.NewSchedulerService(30*time.Second, log.With().Str("component", "scheduler").Logger())
		if _, err := scheduler.Every("store_stats", cfg.StatsInterval, func(ctx context.Context) error {
			_, err := stats.Report(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("schedule stats: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	liveness := health.New(cfg.Addr(), log.With().Str("component", "health").Logger())

	log.Info().
		Str("backend", cfg.CompletionBackend).
		Str("model", cfg.Model).
		Int("history_limit", cfg.HistoryLimit).
		Msg("Doni bot started.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telegramBot.Start(gctx)
	})
	g.Go(func() error {
		return liveness.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
