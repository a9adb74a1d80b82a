package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/storefront/internal/bootstrap"
	"github.com/cassiomorais/storefront/internal/controller"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/notification"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/cassiomorais/storefront/internal/service"
)

const confirmationStreamMaxLen = 100_000

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "storefront-api", "storefront")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Repositories ---
	cartRepo := postgres.NewCartRepository(app.Pool)
	orderRepo := postgres.NewOrderRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Processor ---
	processor, err := providers.New(&cfg.Processor, app.Metrics)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to configure payment processor")
	}

	// --- Post-transition effects ---
	producer := infraRedis.NewStreamProducer(app.Redis, confirmationStreamMaxLen)
	publisher, err := notification.NewPublisher(ctx, &cfg.Notification, producer, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to configure notification publisher")
	}
	effects := service.NewEffectRunner(cfg.Effects.Timeout, app.Metrics, app.Logger,
		service.NewCartClearer(cartRepo),
		service.NewConfirmationNotifier(publisher, app.Logger),
	)

	// --- Services ---
	checkoutService := service.NewCheckoutService(cartRepo, orderRepo, processor, cfg.Checkout, app.Metrics, app.Logger)
	reconciler := service.NewReconciler(orderRepo, txManager, effects, app.Metrics, app.Logger)
	webhookService := service.NewWebhookService(
		service.NewWebhookVerifier(processor),
		service.NewEventDispatcher(reconciler),
		app.Metrics,
		app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		CheckoutService: checkoutService,
		WebhookService:  webhookService,
		SignatureHeader: processor.SignatureHeader(),
		IdempotencyRepo: idempotencyRepo,
		Breaker:         processor,
		HealthChecks: []controller.HealthCheck{
			{Name: "database", Ping: app.PingDatabase},
			{Name: "redis", Ping: app.PingRedis},
		},
		Metrics:   app.Metrics,
		CORS:      cfg.Server.CORS,
		Auth:      cfg.Auth,
		RateLimit: cfg.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Str("processor", processor.Name()).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Paid orders whose cart clear or confirmation is still running.
	if err := effects.Wait(shutdownCtx); err != nil {
		app.Logger.Warn().Err(err).Msg("Post-transition effects still running at exit")
	}
	app.Logger.Info().Msg("Server exited")
}
