package service

import (
	"context"
	"errors"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// WebhookVerifier authenticates a raw delivery and decodes it into an event.
// Nothing is read from the payload until the signature checks out.
type WebhookVerifier struct {
	parser WebhookParser
}

func NewWebhookVerifier(parser WebhookParser) *WebhookVerifier {
	return &WebhookVerifier{parser: parser}
}

func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (webhook.Event, error) {
	if signatureHeader == "" {
		return nil, domainErrors.ErrSignatureInvalid
	}
	return v.parser.ParseWebhook(payload, signatureHeader)
}

// EventDispatcher routes verified events to the reconciler.
type EventDispatcher struct {
	reconciler *Reconciler
}

func NewEventDispatcher(reconciler *Reconciler) *EventDispatcher {
	return &EventDispatcher{reconciler: reconciler}
}

func (d *EventDispatcher) Dispatch(ctx context.Context, ev webhook.Event) (Outcome, error) {
	switch e := ev.(type) {
	case webhook.CheckoutCompleted:
		return d.reconciler.MarkPaid(ctx, e)
	case webhook.PaymentFailed:
		return d.reconciler.MarkFailed(ctx, e)
	default:
		return OutcomeIgnored, nil
	}
}

// WebhookService is the full inbound path: verify, then dispatch.
type WebhookService struct {
	verifier   *WebhookVerifier
	dispatcher *EventDispatcher
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewWebhookService(verifier *WebhookVerifier, dispatcher *EventDispatcher, metrics *observability.Metrics, logger zerolog.Logger) *WebhookService {
	return &WebhookService{
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     observability.ForService(logger, "webhooks"),
	}
}

// Handle returns ErrSignatureInvalid or a ValidationError for deliveries that
// must be refused, ErrOrderNotFound or an unavailability error for deliveries
// the processor should retry, and an Outcome otherwise.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	ev, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		reason := "invalid_payload"
		if errors.Is(err, domainErrors.ErrSignatureInvalid) {
			reason = "invalid_signature"
		}
		s.metrics.WebhookEventsTotal.WithLabelValues("unverified", reason).Inc()
		s.logger.Warn().Err(err).Int("payload_bytes", len(payload)).Msg("Webhook refused")
		return "", err
	}

	log := observability.WithTrace(ctx, s.logger).With().Str("event_id", ev.EventID()).Str("event_kind", string(ev.Kind())).Logger()
	if u, ok := ev.(webhook.Unknown); ok {
		log.Debug().Str("event_type", u.Type).Msg("Ignoring unhandled event type")
	}

	outcome, err := s.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(ev.Kind()), "error").Inc()
		return "", err
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(ev.Kind()), string(outcome)).Inc()
	log.Info().Str("outcome", string(outcome)).Msg("Webhook processed")
	return outcome, nil
}
