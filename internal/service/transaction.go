package service

import (
	"context"

	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/cassiomorais/storefront/internal/providers"
)

// TransactionManager wraps repository calls in a single database transaction.
// fn's context carries the transaction; an error from fn rolls it back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionCreator is the checkout half of providers.Provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, req providers.SessionRequest) (*providers.Session, error)
}

// WebhookParser is the webhook half of providers.Provider.
type WebhookParser interface {
	ParseWebhook(payload []byte, signatureHeader string) (webhook.Event, error)
}
