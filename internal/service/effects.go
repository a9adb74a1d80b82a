package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/notification"
	"github.com/rs/zerolog"
)

// PaidOrder is what post-payment effects act on.
type PaidOrder struct {
	Order         *order.Order
	CustomerEmail string
}

// Effect is a best-effort follow-up to an order becoming paid. Effects must be
// idempotent: a crash between commit and completion loses the run, and a
// redelivered webhook never re-triggers it.
type Effect interface {
	Name() string
	Apply(ctx context.Context, p PaidOrder) error
}

// EffectRunner runs effects in order in the background after the transition
// has committed. A failing effect is logged and counted; the next still runs.
type EffectRunner struct {
	effects []Effect
	timeout time.Duration
	metrics *observability.Metrics
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewEffectRunner(timeout time.Duration, metrics *observability.Metrics, logger zerolog.Logger, effects ...Effect) *EffectRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EffectRunner{
		effects: effects,
		timeout: timeout,
		metrics: metrics,
		logger:  observability.ForService(logger, "effects"),
	}
}

// Dispatch returns immediately. The effects outlive ctx's cancellation but keep its values.
func (r *EffectRunner) Dispatch(ctx context.Context, p PaidOrder) {
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, e := range r.effects {
			r.run(base, e, p)
		}
	}()
}

func (r *EffectRunner) run(ctx context.Context, e Effect, p PaidOrder) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := safeApply(ctx, e, p)
	r.metrics.EffectDuration.WithLabelValues(e.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		r.metrics.EffectsTotal.WithLabelValues(e.Name(), "failure").Inc()
		r.logger.Error().Err(err).
			Str("effect", e.Name()).
			Str("order_id", p.Order.ID.String()).
			Str("session_id", p.Order.SessionID).
			Msg("Post-payment effect failed")
		return
	}
	r.metrics.EffectsTotal.WithLabelValues(e.Name(), "success").Inc()
}

func safeApply(ctx context.Context, e Effect, p PaidOrder) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("effect panicked: %v", rec)
		}
	}()
	return e.Apply(ctx, p)
}

// Wait blocks until every dispatched run has finished or ctx is done.
func (r *EffectRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CartClearer empties the buyer's cart.
type CartClearer struct {
	carts cart.Repository
}

func NewCartClearer(carts cart.Repository) *CartClearer {
	return &CartClearer{carts: carts}
}

func (c *CartClearer) Name() string { return "cart_clear" }

func (c *CartClearer) Apply(ctx context.Context, p PaidOrder) error {
	return c.carts.Clear(ctx, p.Order.UserID)
}

// ConfirmationNotifier hands the order confirmation to the notification channel.
type ConfirmationNotifier struct {
	publisher notification.Publisher
	logger    zerolog.Logger
}

func NewConfirmationNotifier(publisher notification.Publisher, logger zerolog.Logger) *ConfirmationNotifier {
	return &ConfirmationNotifier{publisher: publisher, logger: logger}
}

func (n *ConfirmationNotifier) Name() string { return "order_confirmation" }

func (n *ConfirmationNotifier) Apply(ctx context.Context, p PaidOrder) error {
	if p.CustomerEmail == "" {
		n.logger.Debug().Str("order_id", p.Order.ID.String()).Msg("No customer email, skipping confirmation")
		return nil
	}
	return n.publisher.Publish(ctx, notification.NewOrderConfirmation(p.Order, p.CustomerEmail))
}
