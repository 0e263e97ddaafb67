package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gymhub/api/internal/cache"
	"gymhub/api/internal/config"
	"gymhub/api/internal/log"
	"gymhub/api/internal/mailer"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(mailer.New(cfg.SMTP), cfg.Notifications.LoginURL, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Notifications.Stream,
		cfg.Notifications.Group,
		cfg.Notifications.Consumer,
		cfg.Notifications.ClaimInterval,
		logger,
		processor,
	)

	logger.Info().
		Str("stream", cfg.Notifications.Stream).
		Str("group", cfg.Notifications.Group).
		Msg("notification worker starting")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited cleanly")
}
