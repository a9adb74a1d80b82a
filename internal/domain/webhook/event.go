// Package webhook defines the verified, processor-neutral payment events the
// storefront reacts to.
package webhook

import (
	"github.com/cassiomorais/storefront/internal/domain/errors"
)

// Kind is the normalized event type.
type Kind string

const (
	KindCheckoutCompleted Kind = "checkout_completed"
	KindPaymentFailed     Kind = "payment_failed"
	KindUnknown           Kind = "unknown"
)

// Event is a tagged union over the event kinds below.
type Event interface {
	Kind() Kind
	EventID() string
}

// CheckoutCompleted reports that the customer paid for a session.
type CheckoutCompleted struct {
	ID            string
	SessionID     string
	UserID        string // from session metadata; may be empty
	CustomerEmail string
	AmountTotal   int64 // minor units as charged by the processor
}

func (e CheckoutCompleted) Kind() Kind      { return KindCheckoutCompleted }
func (e CheckoutCompleted) EventID() string { return e.ID }

// Validate fails closed when the event cannot be matched to an order.
func (e CheckoutCompleted) Validate() error {
	if e.SessionID == "" {
		return errors.NewValidationError("session_id", "is required")
	}
	return nil
}

// PaymentFailed reports that payment for a session will not complete.
type PaymentFailed struct {
	ID        string
	SessionID string
	UserID    string
	Reason    string
}

func (e PaymentFailed) Kind() Kind      { return KindPaymentFailed }
func (e PaymentFailed) EventID() string { return e.ID }

func (e PaymentFailed) Validate() error {
	if e.SessionID == "" {
		return errors.NewValidationError("session_id", "is required")
	}
	return nil
}

// Unknown carries any event type the storefront does not act on.
type Unknown struct {
	ID   string
	Type string
}

func (e Unknown) Kind() Kind      { return KindUnknown }
func (e Unknown) EventID() string { return e.ID }
