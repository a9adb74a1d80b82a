package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// EffectDispatcher schedules post-payment effects.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, p PaidOrder)
}

// Reconciler applies payment outcomes to orders. Every transition is a single
// conditional update keyed by session id, so duplicate and reordered
// deliveries converge on the first terminal status recorded.
type Reconciler struct {
	orders    order.Repository
	txManager TransactionManager
	effects   EffectDispatcher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReconciler(
	orders order.Repository,
	txManager TransactionManager,
	effects EffectDispatcher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		orders:    orders,
		txManager: txManager,
		effects:   effects,
		metrics:   metrics,
		logger:    observability.ForService(logger, "reconciler"),
	}
}

// MarkPaid moves the session's order from pending to paid and, when this call
// made the change, dispatches the post-payment effects.
func (r *Reconciler) MarkPaid(ctx context.Context, ev webhook.CheckoutCompleted) (Outcome, error) {
	outcome, o, err := r.reconcile(ctx, ev.ID, order.Transition{
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		From:      order.StatusPending,
		To:        order.StatusPaid,
	})
	if err != nil {
		return "", err
	}
	if outcome == OutcomeApplied {
		r.effects.Dispatch(ctx, PaidOrder{Order: o, CustomerEmail: ev.CustomerEmail})
	}
	return outcome, nil
}

// MarkFailed moves the session's order from pending to failed.
func (r *Reconciler) MarkFailed(ctx context.Context, ev webhook.PaymentFailed) (Outcome, error) {
	outcome, _, err := r.reconcile(ctx, ev.ID, order.Transition{
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		From:      order.StatusPending,
		To:        order.StatusFailed,
	})
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, eventID string, t order.Transition) (Outcome, *order.Order, error) {
	ctx, span := otel.Tracer("storefront/reconciler").Start(ctx, "reconciler.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", t.SessionID),
		attribute.String("target_status", string(t.To)),
	)

	log := observability.WithTrace(ctx, r.logger).With().
		Str("event_id", eventID).
		Str("session_id", t.SessionID).
		Str("target_status", string(t.To)).
		Logger()

	var (
		outcome Outcome
		result  *order.Order
	)
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, applied, err := r.orders.TransitionStatus(txCtx, t)
		if err != nil {
			return err
		}
		if applied {
			outcome, result = OutcomeApplied, o
			return nil
		}

		current, err := r.orders.GetBySessionID(txCtx, t.SessionID)
		if err != nil {
			return err
		}
		result = current

		if t.UserID != "" && current.UserID != t.UserID {
			outcome = OutcomeRejected
			r.anomaly(log, "user_mismatch", current)
			return nil
		}

		switch order.Resolve(current.Status, t.To) {
		case order.AlreadyApplied:
			outcome = OutcomeNoop
		case order.Conflict:
			outcome = OutcomeRejected
			r.anomaly(log, "terminal_conflict", current)
		default:
			// Pending with a matching user, yet the guarded update missed.
			return domainErrors.NewDomainError("concurrent_update",
				fmt.Sprintf("order for session %s changed during reconciliation", t.SessionID),
				domainErrors.ErrInvalidStateTransition)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			log.Warn().Msg("Webhook references unknown session")
			return "", nil, err
		}
		var de *domainErrors.DomainError
		if errors.As(err, &de) {
			return "", nil, err
		}
		log.Error().Err(err).Msg("Order reconciliation failed")
		return "", nil, domainErrors.Unavailable("order store", err)
	}

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if outcome == OutcomeApplied {
		r.metrics.OrderTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
		log.Info().Str("order_id", result.ID.String()).Msg("Order status updated")
	} else if outcome == OutcomeNoop {
		log.Debug().Msg("Duplicate delivery, order already in target status")
	}
	return outcome, result, nil
}

func (r *Reconciler) anomaly(log zerolog.Logger, reason string, current *order.Order) {
	r.metrics.OrderAnomaliesTotal.WithLabelValues(reason).Inc()
	log.Warn().
		Err(domainErrors.ErrAnomalousTransition).
		Str("reason", reason).
		Str("order_id", current.ID.String()).
		Str("order_user_id", current.UserID).
		Str("current_status", string(current.Status)).
		Msg("Webhook conflicts with recorded order, leaving it unchanged")
}
