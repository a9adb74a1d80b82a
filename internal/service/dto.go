package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutRequest is the service input; controllers convert their HTTP DTOs to this type.
type CheckoutRequest struct {
	UserID string
	// ShippingAddress is forwarded to the processor as session metadata, unparsed.
	ShippingAddress string
}

type CheckoutResponse struct {
	SessionID   string
	RedirectURL string
	// OrderID is nil when the pending order could not be recorded.
	OrderID  *uuid.UUID
	Total    decimal.Decimal
	Currency string
}

// Outcome is how a webhook delivery was resolved. Every outcome is acknowledged with 200.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoop     Outcome = "noop"
	OutcomeRejected Outcome = "rejected"
	OutcomeIgnored  Outcome = "ignored"
)
