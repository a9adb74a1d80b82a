// Package notification carries order confirmations from the reconciler to the
// confirmation worker and on to the customer's inbox.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderPaid = "order.paid"

// OrderConfirmation is published once per order that moved to paid.
type OrderConfirmation struct {
	OrderID   uuid.UUID       `json:"order_id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	PaidAt    time.Time       `json:"paid_at"`
}

// NewOrderConfirmation builds the confirmation for a freshly paid order.
func NewOrderConfirmation(o *order.Order, email string) OrderConfirmation {
	return OrderConfirmation{
		OrderID:   o.ID,
		SessionID: o.SessionID,
		UserID:    o.UserID,
		Email:     email,
		Total:     o.Total,
		Currency:  o.Currency,
		PaidAt:    o.UpdatedAt,
	}
}

// Publisher hands a confirmation off for delivery.
type Publisher interface {
	Publish(ctx context.Context, c OrderConfirmation) error
}

// Values encodes c as stream fields.
func (c OrderConfirmation) Values() (map[string]any, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal confirmation: %w", err)
	}
	return map[string]any{
		"event_type": EventOrderPaid,
		"order_id":   c.OrderID.String(),
		"payload":    string(payload),
	}, nil
}

// DecodeValues is the inverse of Values.
func DecodeValues(values map[string]any) (OrderConfirmation, error) {
	var c OrderConfirmation
	raw, ok := values["payload"].(string)
	if !ok || raw == "" {
		return c, domainErrors.NewValidationError("payload", "is required")
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, domainErrors.NewValidationError("payload", "malformed confirmation: "+err.Error())
	}
	if c.OrderID == uuid.Nil {
		return c, domainErrors.NewValidationError("order_id", "is required")
	}
	if c.Email == "" {
		return c, domainErrors.NewValidationError("email", "is required")
	}
	return c, nil
}

// Subject and Body render the customer-facing email.
func (c OrderConfirmation) Subject() string {
	return fmt.Sprintf("Your order %s is confirmed", shortID(c.OrderID))
}

func (c OrderConfirmation) Body() string {
	return fmt.Sprintf(
		"<p>Thanks for your order!</p>"+
			"<p>Order <strong>%s</strong> was paid on %s.</p>"+
			"<p>Total: %s %s</p>",
		c.OrderID, c.PaidAt.UTC().Format("2 Jan 2006 15:04 MST"), c.Total.StringFixed(2), strings.ToUpper(c.Currency),
	)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

