package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/storefront/internal/bootstrap"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/notification"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/cassiomorais/storefront/internal/worker"
	"golang.org/x/sync/errgroup"
)

const dlqMaxLen = 10_000

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "storefront-worker", "storefront_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config
	workerCfg := cfg.Worker

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		cfg.Notification.Stream,
		workerCfg.ConsumerGroup,
		cfg.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	confirmations := worker.NewConfirmationWorker(
		consumer,
		infraRedis.NewStreamProducer(app.Redis, dlqMaxLen),
		worker.NewRedisLocker(infraRedis.NewLocker(app.Redis, "confirmation", workerCfg.LockTTL)),
		infraRedis.NewSentMarkers(app.Redis, "confirmation", workerCfg.IdempotencyTTL),
		notification.NewEmailSender(&cfg.Email, app.Logger),
		worker.ConfirmationSettings{
			SendAttempts:   workerCfg.SendAttempts,
			SendRetryDelay: workerCfg.SendRetryDelay,
			ClaimMinIdle:   workerCfg.ClaimMinIdle,
			LockTTL:        workerCfg.LockTTL,
		},
		app.Metrics,
		app.Logger,
	)

	app.Logger.Info().
		Str("stream", consumer.Stream()).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", cfg.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Order confirmation emails.
	g.Go(func() error {
		return confirmations.Run(gCtx)
	})

	// 2. Expired checkout idempotency keys.
	g.Go(func() error {
		return worker.RunIdempotencyCleanup(gCtx, postgres.NewIdempotencyRepository(app.Pool), workerCfg.CleanupInterval, app.Logger)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
