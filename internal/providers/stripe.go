package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	stripewebhook "github.com/stripe/stripe-go/v80/webhook"
)

const (
	StripeSignatureHeader = "Stripe-Signature"

	stripeCheckoutCompleted     = "checkout.session.completed"
	stripeAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	stripeAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	stripeSessionExpired        = "checkout.session.expired"
)

// StripeProvider talks to Stripe Checkout. It holds its own API client; the
// package-level stripe.Key is never set.
type StripeProvider struct {
	sessions      session.Client
	webhookSecret string
	tolerance     time.Duration
}

type StripeOption func(*StripeProvider)

// WithBackend replaces the API backend, e.g. to point at stripe-mock.
func WithBackend(b stripe.Backend) StripeOption {
	return func(p *StripeProvider) { p.sessions.B = b }
}

func NewStripeProvider(secretKey, webhookSecret string, tolerance time.Duration, opts ...StripeOption) *StripeProvider {
	p := &StripeProvider{
		sessions:      session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewStripeBackend builds an API backend with an explicit HTTP timeout and no
// SDK-level retries; the circuit breaker owns failure handling.
func NewStripeBackend(apiBase string, timeout time.Duration) stripe.Backend {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if apiBase != "" {
		cfg.URL = stripe.String(apiBase)
	}
	return stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SignatureHeader() string { return StripeSignatureHeader }

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	for k, v := range sessionMetadata(req) {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 &&
		se.HTTPStatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("stripe: %w: %s", domainErrors.ErrProviderRejected, se.Msg)
	}
	return domainErrors.Unavailable("stripe", err)
}

func (p *StripeProvider) ParseWebhook(payload []byte, signatureHeader string) (webhook.Event, error) {
	if err := stripewebhook.ValidatePayloadWithTolerance(payload, signatureHeader, p.webhookSecret, p.tolerance); err != nil {
		return nil, fmt.Errorf("stripe: %w: %v", domainErrors.ErrSignatureInvalid, err)
	}

	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, domainErrors.NewValidationError("body", "malformed event: "+err.Error())
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, domainErrors.NewValidationError("type", "event id and type are required")
	}

	switch string(evt.Type) {
	case stripeCheckoutCompleted, stripeAsyncPaymentSucceeded:
		sess, err := decodeCheckoutSession(evt)
		if err != nil {
			return nil, err
		}
		// Delayed payment methods complete the session before the money moves;
		// async_payment_succeeded follows once it does.
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return webhook.Unknown{ID: evt.ID, Type: string(evt.Type)}, nil
		}
		ev := webhook.CheckoutCompleted{
			ID:            evt.ID,
			SessionID:     sess.ID,
			UserID:        sess.Metadata[MetadataUserID],
			CustomerEmail: sess.CustomerEmail,
			AmountTotal:   sess.AmountTotal,
		}
		if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
			ev.CustomerEmail = sess.CustomerDetails.Email
		}
		return ev, ev.Validate()

	case stripeAsyncPaymentFailed, stripeSessionExpired:
		sess, err := decodeCheckoutSession(evt)
		if err != nil {
			return nil, err
		}
		ev := webhook.PaymentFailed{
			ID:        evt.ID,
			SessionID: sess.ID,
			UserID:    sess.Metadata[MetadataUserID],
			Reason:    string(evt.Type),
		}
		return ev, ev.Validate()

	default:
		return webhook.Unknown{ID: evt.ID, Type: string(evt.Type)}, nil
	}
}

func decodeCheckoutSession(evt stripe.Event) (*stripe.CheckoutSession, error) {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, domainErrors.NewValidationError("data.object", "is required")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return nil, domainErrors.NewValidationError("data.object", "malformed checkout session: "+err.Error())
	}
	if sess.ID == "" {
		return nil, domainErrors.NewValidationError("session_id", "is required")
	}
	return &sess, nil
}
