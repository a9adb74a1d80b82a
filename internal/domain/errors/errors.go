// Package errors holds the sentinel errors shared across the storefront and
// the two structured error types the HTTP layer knows how to render.
package errors

import (
	"errors"
	"fmt"
)

// Checkout.
var (
	ErrEmptyCart   = errors.New("cart is empty")
	ErrInvalidUser = errors.New("invalid user")
)

// Orders. ErrAnomalousTransition marks a webhook that contradicts the order it
// names, e.g. a payment failure for an order already paid.
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAnomalousTransition    = errors.New("anomalous order transition")
)

var ErrSignatureInvalid = errors.New("webhook signature invalid")

// Upstream. ErrUpstreamUnavailable means the cart store, the database or the
// processor could not be reached and the caller may retry. ErrProviderRejected
// means the processor answered and refused.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProviderRejected    = errors.New("request rejected by payment provider")
	ErrProviderNotFound    = errors.New("payment provider not found")
)

var (
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrLockAcquisitionFailed   = errors.New("failed to acquire lock")
	ErrLockNotHeld             = errors.New("lock not held")
	ErrValidationFailed        = errors.New("validation failed")
)

// DomainError is a business rule violation with a stable machine-readable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error { return e.Err }

// ValidationError reports a missing or malformed field. Webhook payloads that
// fail decoding surface as ValidationError so they are never half-applied.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unavailable tags cause as ErrUpstreamUnavailable, keeping cause in the chain.
func Unavailable(component string, cause error) error {
	return fmt.Errorf("%s: %w: %w", component, ErrUpstreamUnavailable, cause)
}
