package providers

import (
	"context"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
)

// MetadataUserID is the session metadata key carrying the storefront user id.
const MetadataUserID = "user_id"

// SessionRequest describes a hosted checkout session.
type SessionRequest struct {
	UserID     string
	LineItems  []cart.LineItem
	Currency   string
	SuccessURL string
	CancelURL  string
	// Metadata is echoed back on webhook events. MetadataUserID is always set.
	Metadata map[string]string
}

// Session is the processor's reply to CreateSession.
type Session struct {
	ID  string
	URL string
}

type Provider interface {
	// Name returns the provider name.
	Name() string
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// CreateSession creates a hosted checkout session.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseWebhook authenticates payload against signatureHeader and decodes it.
	// It returns errors.ErrSignatureInvalid before looking at the payload when
	// authentication fails, and a ValidationError for malformed events.
	ParseWebhook(payload []byte, signatureHeader string) (webhook.Event, error)
}

func sessionMetadata(req SessionRequest) map[string]string {
	md := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md[MetadataUserID] = req.UserID
	return md
}
