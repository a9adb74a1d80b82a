package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const metadataShippingAddress = "shipping_address"

// CheckoutService turns a user's cart into a hosted checkout session and a pending order.
type CheckoutService struct {
	carts    cart.Repository
	orders   order.Repository
	sessions SessionCreator
	cfg      config.CheckoutConfig
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewCheckoutService(
	carts cart.Repository,
	orders order.Repository,
	sessions SessionCreator,
	cfg config.CheckoutConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		orders:   orders,
		sessions: sessions,
		cfg:      cfg,
		metrics:  metrics,
		logger:   observability.ForService(logger, "checkout"),
	}
}

// CreateSession snapshots the cart, opens a processor session and records the
// pending order. A failed order insert is logged and the session is still
// returned: the customer can pay, and the webhook for that session will then
// fail with ErrOrderNotFound until someone reconciles it.
func (s *CheckoutService) CreateSession(ctx context.Context, req CheckoutRequest) (resp *CheckoutResponse, err error) {
	ctx, span := otel.Tracer("storefront/checkout").Start(ctx, "checkout.create_session")
	defer span.End()

	start := time.Now()
	result := "created"
	defer func() {
		s.metrics.CheckoutSessionsTotal.WithLabelValues(result).Inc()
		s.metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		result = "invalid_user"
		return nil, domainErrors.ErrInvalidUser
	}
	span.SetAttributes(attribute.String("user_id", userID))
	log := observability.WithTrace(ctx, s.logger).With().Str("user_id", userID).Logger()

	snap, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		result = "cart_unavailable"
		return nil, domainErrors.Unavailable("cart store", err)
	}
	if snap.IsEmpty() {
		result = "empty_cart"
		return nil, domainErrors.ErrEmptyCart
	}

	total := snap.Total()
	sessReq := providers.SessionRequest{
		UserID:     userID,
		LineItems:  snap.LineItems(),
		Currency:   s.cfg.Currency,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	}
	if addr := strings.TrimSpace(req.ShippingAddress); addr != "" {
		sessReq.Metadata = map[string]string{metadataShippingAddress: addr}
	}

	sess, err := s.sessions.CreateSession(ctx, sessReq)
	if err != nil {
		result = "provider_error"
		if errors.Is(err, domainErrors.ErrProviderRejected) {
			result = "provider_rejected"
		}
		log.Error().Err(err).Msg("Failed to create checkout session")
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	resp = &CheckoutResponse{
		SessionID:   sess.ID,
		RedirectURL: sess.URL,
		Total:       total,
		Currency:    s.cfg.Currency,
	}

	pending, err := order.NewPending(userID, sess.ID, total, s.cfg.Currency)
	if err == nil {
		pending, err = s.orders.CreatePending(ctx, pending)
	}
	if err != nil {
		s.metrics.PendingOrderInsertErr.Inc()
		log.Error().Err(err).
			Str("session_id", sess.ID).
			Str("total", total.StringFixed(2)).
			Msg("Checkout session created without a pending order")
		return resp, nil
	}

	resp.OrderID = &pending.ID
	log.Info().
		Str("session_id", sess.ID).
		Str("order_id", pending.ID.String()).
		Str("total", total.StringFixed(2)).
		Int("items", len(snap.Items)).
		Msg("Checkout session created")
	return resp, nil
}

// OrderBySession returns the order for a session. When userID is set, orders
// belonging to someone else are reported as not found.
func (s *CheckoutService) OrderBySession(ctx context.Context, sessionID, userID string) (*order.Order, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domainErrors.NewValidationError("session_id", "is required")
	}
	o, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			return nil, err
		}
		return nil, domainErrors.Unavailable("order store", err)
	}
	if userID != "" && o.UserID != userID {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}
