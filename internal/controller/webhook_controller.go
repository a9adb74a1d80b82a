package controller

import (
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/rs/zerolog/log"
)

// maxWebhookBodySize bounds processor deliveries; Stripe events are well under it.
const maxWebhookBodySize = 64 << 10

// WebhookController receives processor deliveries. Any non-2xx response makes
// the processor retry, so only store failures answer 5xx.
type WebhookController struct {
	webhooks        *service.WebhookService
	signatureHeader string
}

func NewWebhookController(webhooks *service.WebhookService, signatureHeader string) *WebhookController {
	return &WebhookController{webhooks: webhooks, signatureHeader: signatureHeader}
}

// Receive handles POST /webhooks/payments
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	// The signature covers the raw bytes, so the body is never decoded here.
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large", Code: "payload_too_large"})
			return
		}
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "invalid_payload"})
		return
	}

	outcome, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(h.signatureHeader))
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, WebhookAck{Received: true, Outcome: string(outcome)})
	case errors.Is(err, domainErrors.ErrSignatureInvalid):
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid signature", Code: "invalid_signature"})
	case errors.Is(err, domainErrors.ErrValidationFailed):
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_payload"})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("webhook processing failed, processor will retry")
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "processing failed", Code: "retry"})
	}
}
